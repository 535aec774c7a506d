package bot

// Command constants for Telegram bot commands.
const (
	CommandStart     = "/start"
	CommandCancel    = "/cancel"
	CommandReset     = "/reset"
	CommandHoroscope = "/horoscope"
	CommandProfile   = "/profile"
	CommandHelp      = "/help"
	CommandStop      = "/stop"
	CommandResume    = "/resume"
	CommandSendToday = "/send_today"
)

// menuCommands are advertised in the Telegram command menu. Admin commands
// stay hidden.
var menuCommands = []struct {
	Command     string
	Description string
}{
	{CommandHoroscope, "Today's horoscope"},
	{CommandProfile, "Show your profile"},
	{CommandStart, "Register"},
	{CommandReset, "Fill in your profile again"},
	{CommandCancel, "Cancel the current action"},
	{CommandStop, "Pause daily horoscopes"},
	{CommandResume, "Resume daily horoscopes"},
	{CommandHelp, "Help"},
}
