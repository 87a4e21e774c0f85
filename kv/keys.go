package kv

import "strings"

// repoKey converts "owner/repo" to the "owner:repo" form used in Redis key
// patterns, per spec §6's note ("slash→colon").
func repoKey(fullName string) string {
	return strings.Replace(fullName, "/", ":", 1)
}

func UserProfileKey(login string) string   { return "user_profile_v2:" + login }
func UserLegacyKey(login string) string    { return "user_baseline_numpy:" + login }
func RepoProfileKey(fullName string) string { return "repo_profile_v2:" + repoKey(fullName) }
func RepoContextKey(fullName string) string { return "repo_context_info:" + repoKey(fullName) }
func RepoContributorsKey(fullName string) string { return "repo_contributors:" + repoKey(fullName) }
func UserBaselineTemporalKey(login string) string { return "user_baseline_temporal:" + login }
func RepoBaselineTemporalKey(fullName string) string {
	return "repo_baseline_temporal:" + repoKey(fullName)
}

const (
	GitHubRateLimitKey     = "github:rate_limit"
	GitHubCircuitBreakerKey = "github:circuit_breaker"
	GitHubSemaphoreKey     = "github:api_semaphore"
	EventQueueKey          = "event_queue"
)

func AnomalyQueueKey(band string) string       { return "anomaly_queue:" + band }
func AnomalyDeadLetterKey() string             { return "anomaly_queue:dead_letter" }
func AnomalyQueueMetadataKey(band string) string { return "anomaly_queue:metadata:" + band }
