package course

import "fmt"

const (
	msgTaskHeader = "📋 Day %d task:\n\n%s"

	msgReminder1 = "⏰ Reminder: today's task is still waiting for you. There is plenty of time, start with the questions below."
	msgReminder2 = "⏰ Second reminder: the day closes soon. Answer the questions and publish your post."
	msgReminder3 = "🔥 Last call: submit today's post link before the day closes or you will receive a penalty."

	msgPenalty1 = "⚠️ You missed yesterday's task. That is your first penalty. Three penalties remove you from the course."
	msgPenalty2 = "⚠️ Second penalty. One more missed task and you are out of the course."
	msgPenalty3 = "🚫 Third penalty. You have been excluded from the course."
	msgPenalty4 = "🚫 You are no longer taking part in the course."

	msgCompletion = "🎉 Congratulations, %s! You finished the course. Penalties on the way: %d."

	msgLateJoinerDayOne  = "You registered just in time, here is today's task."
	msgLateJoinerLimited = "The course is already running, so you join in limited mode starting from today's task."
)

func penaltyMessage(count int) string {
	switch count {
	case 1:
		return msgPenalty1
	case 2:
		return msgPenalty2
	case 3:
		return msgPenalty3
	}
	return msgPenalty4
}

func taskMessage(day int, assignment string) string {
	return fmt.Sprintf(msgTaskHeader, day, assignment)
}

func reminderMessage(number int) string {
	switch number {
	case 1:
		return msgReminder1
	case 2:
		return msgReminder2
	}
	return msgReminder3
}
