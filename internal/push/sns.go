package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"recruit-notifier/internal/common/logger"
)

// SNSAPI is the subset of the SNS client the provider calls.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	CreatePlatformEndpoint(ctx context.Context, params *sns.CreatePlatformEndpointInput, optFns ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error)
	Subscribe(ctx context.Context, params *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
	SetEndpointAttributes(ctx context.Context, params *sns.SetEndpointAttributesInput, optFns ...func(*sns.Options)) (*sns.SetEndpointAttributesOutput, error)
}

// existingEndpoint matches the CreatePlatformEndpoint rejection for a token
// that is registered already under different attributes.
var existingEndpoint = regexp.MustCompile(`Endpoint (arn:\S+) already exists`)

type SNSConfig struct {
	// PlatformApplicationARN is the FCM platform application device tokens
	// are registered under.
	PlatformApplicationARN string
	// TopicARNPrefix turns a topic name into its ARN.
	TopicARNPrefix string
}

// SNSProvider sends through Amazon SNS. Topics map to SNS topics, device
// tokens to platform endpoints.
type SNSProvider struct {
	client SNSAPI
	config SNSConfig
	logger logger.Logger
}

func NewSNSProvider(client SNSAPI, cfg SNSConfig, log logger.Logger) *SNSProvider {
	return &SNSProvider{
		client: client,
		config: cfg,
		logger: logger.Component(log, "push"),
	}
}

type gcmPayload struct {
	Notification struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"notification"`
	Data map[string]string `json:"data,omitempty"`
}

// envelope builds the per-platform message structure SNS expects when
// MessageStructure is "json".
func envelope(msg Message) (string, error) {
	var p gcmPayload
	p.Notification.Title = msg.Title
	p.Notification.Body = msg.Body
	p.Data = msg.Data

	gcm, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(map[string]string{
		"default": msg.Body,
		"GCM":     string(gcm),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (p *SNSProvider) TopicARN(topic string) string {
	return p.config.TopicARNPrefix + topic
}

func (p *SNSProvider) Send(ctx context.Context, msg Message) (string, error) {
	if !msg.Target.Valid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidTarget, msg.Target)
	}

	body, err := envelope(msg)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}

	input := &sns.PublishInput{
		Message:          aws.String(body),
		MessageStructure: aws.String("json"),
		Subject:          aws.String(msg.Title),
	}

	if msg.Target.Topic != "" {
		input.TopicArn = aws.String(p.TopicARN(msg.Target.Topic))
	} else {
		endpoint, err := p.endpointFor(ctx, msg.Target.Token)
		if err != nil {
			return "", err
		}
		input.TargetArn = aws.String(endpoint)
	}

	out, err := p.client.Publish(ctx, input)
	if err != nil {
		return "", classify(err)
	}
	return aws.ToString(out.MessageId), nil
}

// SubscribeToTopic registers the token as a platform endpoint and subscribes
// that endpoint to the topic.
func (p *SNSProvider) SubscribeToTopic(ctx context.Context, token, topic string) error {
	endpoint, err := p.endpointFor(ctx, token)
	if err != nil {
		return err
	}

	_, err = p.client.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn:              aws.String(p.TopicARN(topic)),
		Protocol:              aws.String("application"),
		Endpoint:              aws.String(endpoint),
		ReturnSubscriptionArn: true,
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, classify(err))
	}

	p.logger.Debug("token subscribed", map[string]interface{}{"topic": topic})
	return nil
}

// endpointFor returns the platform endpoint of a device token. SNS returns
// the existing endpoint when the token is already registered.
func (p *SNSProvider) endpointFor(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	out, err := p.client.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(p.config.PlatformApplicationARN),
		Token:                  aws.String(token),
	})
	if err != nil {
		if arn, ok := registeredEndpoint(err); ok {
			return p.reactivate(ctx, arn, token)
		}
		return "", fmt.Errorf("register endpoint: %w", classify(err))
	}
	return aws.ToString(out.EndpointArn), nil
}

// reactivate points an already registered endpoint back at token and
// enables it again.
func (p *SNSProvider) reactivate(ctx context.Context, arn, token string) (string, error) {
	_, err := p.client.SetEndpointAttributes(ctx, &sns.SetEndpointAttributesInput{
		EndpointArn: aws.String(arn),
		Attributes: map[string]string{
			"Token":   token,
			"Enabled": "true",
		},
	})
	if err != nil {
		return "", fmt.Errorf("reactivate endpoint: %w", classify(err))
	}
	p.logger.Info("existing endpoint reactivated", map[string]interface{}{"endpoint": arn})
	return arn, nil
}

func registeredEndpoint(err error) (string, bool) {
	var invalid *types.InvalidParameterException
	if !errors.As(err, &invalid) {
		return "", false
	}
	m := existingEndpoint.FindStringSubmatch(invalid.ErrorMessage())
	if m == nil {
		return "", false
	}
	return strings.TrimSuffix(m[1], "."), true
}

// classify marks only provider-reported token invalidation as
// ErrInvalidToken. Other parameter errors, such as an oversized message,
// leave the token alone.
func classify(err error) error {
	var disabled *types.EndpointDisabledException
	if errors.As(err, &disabled) {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var invalid *types.InvalidParameterException
	if errors.As(err, &invalid) {
		msg := invalid.ErrorMessage()
		if strings.Contains(msg, "Invalid parameter: Token") && !strings.Contains(msg, "already exists") {
			return fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	return err
}
