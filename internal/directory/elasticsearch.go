package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"recruit-notifier/internal/common/logger"
)

// ESDirectory reads the users and universities indices. User documents carry
// "userId" and "role" keyword fields; university documents a "name".
type ESDirectory struct {
	client *elasticsearch.Client
	config Config
	logger logger.Logger
}

func NewESDirectory(client *elasticsearch.Client, cfg Config, log logger.Logger) *ESDirectory {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	return &ESDirectory{
		client: client,
		config: cfg,
		logger: logger.Component(log, "directory"),
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source struct {
				UserID string `json:"userId"`
			} `json:"_source"`
			Sort []interface{} `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

func roleQuery(role string, size int, after []interface{}) map[string]interface{} {
	q := map[string]interface{}{
		"size":    size,
		"_source": []string{"userId"},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"role": role}},
				},
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"userId": "asc"},
		},
	}
	if len(after) > 0 {
		q["search_after"] = after
	}
	return q
}

// UserIDsByRole pages through every user with the role using search_after.
func (d *ESDirectory) UserIDsByRole(ctx context.Context, role string) ([]string, error) {
	var (
		ids   []string
		after []interface{}
	)

	for {
		body, err := json.Marshal(roleQuery(role, d.config.PageSize, after))
		if err != nil {
			return nil, err
		}

		res, err := d.client.Search(
			d.client.Search.WithContext(ctx),
			d.client.Search.WithIndex(d.config.UsersIndex),
			d.client.Search.WithBody(bytes.NewReader(body)),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: search %s: %v", ErrDirectoryFailed, d.config.UsersIndex, err)
		}

		var page searchResponse
		err = decode(res, &page)
		if err != nil {
			return nil, err
		}

		for _, hit := range page.Hits.Hits {
			if hit.Source.UserID != "" {
				ids = append(ids, hit.Source.UserID)
			}
		}

		n := len(page.Hits.Hits)
		if n < d.config.PageSize || n == 0 {
			break
		}
		after = page.Hits.Hits[n-1].Sort
	}

	d.logger.Debug("users resolved by role", map[string]interface{}{
		"role":  role,
		"count": len(ids),
	})
	return ids, nil
}

func (d *ESDirectory) UserExists(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}

	res, err := d.client.Exists(d.config.UsersIndex, userID, d.client.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("%w: user %s: %v", ErrDirectoryFailed, userID, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: user %s: %s", ErrDirectoryFailed, userID, res.Status())
	}
}

func (d *ESDirectory) UniversityName(ctx context.Context, universityID string) (string, error) {
	res, err := d.client.Get(d.config.UniversitiesIndex, universityID, d.client.Get.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("%w: university %s: %v", ErrDirectoryFailed, universityID, err)
	}
	if res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return "", fmt.Errorf("%w: %s", ErrUniversityNotFound, universityID)
	}

	var doc struct {
		Found  bool `json:"found"`
		Source struct {
			Name string `json:"name"`
		} `json:"_source"`
	}
	if err := decode(res, &doc); err != nil {
		return "", err
	}
	if !doc.Found {
		return "", fmt.Errorf("%w: %s", ErrUniversityNotFound, universityID)
	}
	return doc.Source.Name, nil
}

func decode(res *esapi.Response, out interface{}) error {
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%w: %s: %s", ErrDirectoryFailed, res.Status(), string(msg))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrDirectoryFailed, err)
	}
	return nil
}
