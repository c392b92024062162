// Package entity defines domain types shared across the application.

package entity

// Notification topics used to categorize bot messages.
// Users subscribe to topics to filter which notifications they receive.
// Log calls can tag messages with slog.String("tg_topic", entity.TopicXxx).
const (
	TopicJoin     = "join"
	TopicLeave    = "leave"
	TopicInvite   = "invite"
	TopicError    = "error"
	TopicSystem   = "system"
	TopicSecurity = "security"
)

var allTopics = []string{
	TopicJoin,
	TopicLeave,
	TopicInvite,
	TopicError,
	TopicSystem,
	TopicSecurity,
}

// admin-only topics; regular users only see guild activity
var adminTopics = map[string]bool{
	TopicError:    true,
	TopicSystem:   true,
	TopicSecurity: true,
}

func AllTopics() []string {
	result := make([]string, len(allTopics))
	copy(result, allTopics)
	return result
}

// TopicsForRole lists the topics a role may subscribe to.
func TopicsForRole(role TelegramRole) []string {
	if role == RoleAdmin {
		return AllTopics()
	}
	result := make([]string, 0, len(allTopics))
	for _, t := range allTopics {
		if !adminTopics[t] {
			result = append(result, t)
		}
	}
	return result
}

func IsValidTopic(topic string) bool {
	for _, t := range allTopics {
		if t == topic {
			return true
		}
	}
	return false
}

func IsTopicAllowedForRole(topic string, role TelegramRole) bool {
	if !IsValidTopic(topic) {
		return false
	}
	return role == RoleAdmin || !adminTopics[topic]
}
