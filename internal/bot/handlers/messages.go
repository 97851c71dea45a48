package handlers

const (
	msgAskEmail      = "👋 Welcome! To register, send the email you enrolled with."
	msgBadEmail      = "That doesn't look like an email. Please send it again."
	msgEmailNotFound = "This email is not on the enrollment list. Check for typos or contact support."
	msgEmailTaken    = "This email is already linked to another Telegram account."
	msgAskChannel    = "✅ Email confirmed. Now send a link to your public Telegram channel (like t.me/yourchannel or @yourchannel)."
	msgBadChannel    = "Please send a link to a public Telegram channel, like t.me/yourchannel."
	msgChannelPriv   = "I can't see that channel. Make sure it's public and try again."
	msgNotAChannel   = "That link doesn't point to a channel. Send a link to your public channel."
	msgRegistered    = "🎉 Registration complete!"
	msgRegWaiting    = "The course hasn't started yet. You'll get the first task right here when it does."

	msgStatusNotStarted = "You're registered. The course hasn't started yet, the first task will arrive here."
	msgStatusTaskDue    = "Today's task is waiting for you. Use the buttons under the task message."
	msgStatusSubmitted  = "Today's task is done. The next one arrives tomorrow morning."
	msgStatusCompleted  = "You've finished the course. Well done!"
	msgStatusExcluded   = "You were excluded from the course after three missed tasks."

	msgUsePostButton = "Looks like a post link. Press the \"Submit the task\" button under your task message first."
	msgUseStart      = "Send /start to begin."

	msgNoTaskYet       = "You don't have an active task yet. Wait for the daily broadcast."
	msgAlreadyDone     = "You've already submitted this task. The next one arrives tomorrow."
	msgNeedChannel     = "You need a registered channel first. Send /start to finish registration."
	msgQuestionsIntro  = "Let's prepare your post. I'll ask three quick questions; answer with text or a voice message."
	msgStillGenerating = "Still working on your draft, give it a moment."
	msgGenerating      = "✨ Got it, generating your post draft..."
	msgGenTimeout      = "The generator is taking too long. Please press \"Write the post\" and try again later."
	msgGenFailed       = "Something went wrong while generating. Please try again."
	msgPublishPrompt   = "Publish this post on your channel, then press the button and send me the link."
	msgVoiceFailed     = "I couldn't transcribe that voice message. Please try again or answer with text."

	msgAskLink      = "Send the link to your published post (like https://t.me/yourchannel/123)."
	msgBadLink      = "That doesn't look like a post link. Send something like https://t.me/yourchannel/123."
	msgWrongChannel = "This post is not from your registered channel."
	msgOldPost      = "This post is too old. Publish a fresh post for today's task."
	msgSubmitted    = "✅ Task accepted! See you tomorrow."
	msgCourseDone   = "🏆 That was the final task. Congratulations on completing the course!"
)
