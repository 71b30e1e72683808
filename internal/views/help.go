package views

const helpMarkdown = `# bridgesync

| command | effect |
|---|---|
| ` + "`sync [schedules]`" + ` | fetch schedules since the last synced day |
| ` + "`sync reports <id> [days]`" + ` | replace the local window of a report |
| ` + "`push`" + ` | upload reports and activities waiting to sync |
| ` + "`show schedules [days]`" + ` | list local activities |
| ` + "`show reports <id> [days]`" + ` | list local reports |
| ` + "`show reminders`" + ` | list reminders and their next firing |
| ` + "`resource app_config`" + ` | print the cached app config |
| ` + "`resource survey <guid> <createdOn>`" + ` | print a cached survey revision |
| ` + "`remind <title> at <when> [every <n> days] [quiet <window>]`" + ` | add a reminder |
| ` + "`cancel <guid>`" + ` | delete a reminder |
| ` + "`start <guid>` / `finish <guid> [json]`" + ` | record activity progress |
| ` + "`save <id> <json>`" + ` | store a report now and push it |
| ` + "`clear reports`" + ` | drop every local report |

Times are RFC 3339 instants or ` + "`HH:MM`" + `. Quiet windows look like
` + "`night`" + ` or ` + "`window=22:00-07:00;days=weekdays`" + `.
`

func RenderHelp() string {
	return RenderMarkdown(helpMarkdown)
}
