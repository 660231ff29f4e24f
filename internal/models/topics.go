// internal/models/topics.go
package models

import "fmt"

const (
	TopicJobSeekers    = "job_seekers"
	TopicAllApplicants = "all_applicants"
)

// UniversityTopic is the broadcast channel for applicants of one university.
func UniversityTopic(universityID string) string {
	return fmt.Sprintf("university_%s_applicants", universityID)
}

// ApplicantBaseTopics are the topics every applicant is subscribed to.
func ApplicantBaseTopics() []string {
	return []string{TopicJobSeekers, TopicAllApplicants}
}
