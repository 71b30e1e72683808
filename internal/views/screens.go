package views

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/sagebionetworks/bridgesdk/internal/model"
)

type ScheduleRowData struct {
	GUID        string
	Label       string
	Kind        string
	Status      model.ActivityStatus
	ScheduledOn string
	ExpiresOn   string
	Pending     bool
}

type ReportItemData struct {
	Day     string
	Time    string
	Data    string
	Pending bool
}

type ReminderItemData struct {
	GUID    string
	Code    int
	Title   string
	Repeat  string
	Next    string
	Enabled bool
}

type SyncSummaryData struct {
	Subject string
	Result  model.SyncResult
	Err     error
}

func ScheduleRows(acts []model.ScheduledActivity, now time.Time) []ScheduleRowData {
	rows := make([]ScheduleRowData, 0, len(acts))
	for _, a := range acts {
		row := ScheduleRowData{
			GUID:        a.GUID,
			Label:       a.Label,
			Kind:        string(a.ActivityType),
			Status:      a.Status(now),
			ScheduledOn: a.ScheduledOn.Local().Format("2006-01-02 15:04"),
			Pending:     a.NeedsSync,
		}
		if a.ExpiresOn != nil {
			row.ExpiresOn = a.ExpiresOn.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, row)
	}
	return rows
}

func RenderSchedules(rows []ScheduleRowData) string {
	if len(rows) == 0 {
		return "schedules:\n(no activities in range)"
	}
	cols := []table.Column{
		{Title: "Scheduled", Width: 16},
		{Title: "Status", Width: 11},
		{Title: "Kind", Width: 8},
		{Title: "Label", Width: 28},
		{Title: "GUID", Width: 36},
	}
	trows := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		label := r.Label
		if r.Pending {
			label += " *"
		}
		trows = append(trows, table.Row{r.ScheduledOn, statusBadge(r.Status), strings.ToUpper(r.Kind), label, r.GUID})
	}
	t := table.New(table.WithColumns(cols), table.WithRows(trows), table.WithHeight(len(trows)+1))
	return "schedules:\n" + t.View()
}

func ReportItems(reports []model.Report) []ReportItemData {
	items := make([]ReportItemData, 0, len(reports))
	for _, r := range reports {
		item := ReportItemData{Data: string(r.Data), Pending: r.NeedsSync}
		switch {
		case r.Timestamp != nil:
			ts := *r.Timestamp
			item.Day = ts.Format(model.LocalDateLayout)
			item.Time = ts.Format("15:04:05")
		case r.LocalDate != nil:
			item.Day = model.FormatLocalDate(*r.LocalDate)
		}
		items = append(items, item)
	}
	return items
}

func RenderReports(identifier string, category model.ReportCategory, items []ReportItemData) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("reports: %s (%s)\n", identifier, category))

	grouped := make(map[string][]ReportItemData)
	keys := make([]string, 0)
	for _, item := range items {
		if _, ok := grouped[item.Day]; !ok {
			keys = append(keys, item.Day)
		}
		grouped[item.Day] = append(grouped[item.Day], item)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		b.WriteString("(no reports in range)")
		return b.String()
	}

	for _, day := range keys {
		b.WriteString(fmt.Sprintf("\n%s:\n", day))
		dayItems := grouped[day]
		sort.SliceStable(dayItems, func(i, j int) bool { return dayItems[i].Time < dayItems[j].Time })
		for _, item := range dayItems {
			marker := " "
			if item.Pending {
				marker = "*"
			}
			when := item.Time
			if when == "" {
				when = "--:--:--"
			}
			b.WriteString(fmt.Sprintf("%s %s %s\n", marker, when, item.Data))
		}
	}
	return strings.TrimSpace(b.String())
}

func ReminderItems(rems []model.Reminder, next func(guid string) (time.Time, bool)) []ReminderItemData {
	items := make([]ReminderItemData, 0, len(rems))
	for _, r := range rems {
		item := ReminderItemData{GUID: r.GUID, Code: r.Code, Title: r.Title, Enabled: r.Enabled, Repeat: "once"}
		if r.Rule.Repeat != nil {
			item.Repeat = describeRepeat(*r.Rule.Repeat)
		}
		if next != nil {
			if at, ok := next(r.GUID); ok {
				item.Next = at.Local().Format("2006-01-02 15:04")
			}
		}
		items = append(items, item)
	}
	return items
}

func RenderReminders(items []ReminderItemData) string {
	var b strings.Builder
	b.WriteString("reminders:\n")
	if len(items) == 0 {
		b.WriteString("(none)")
		return b.String()
	}
	for _, item := range items {
		state := "[ON]"
		if !item.Enabled {
			state = "[OFF]"
		}
		next := item.Next
		if next == "" {
			next = "-"
		}
		b.WriteString(fmt.Sprintf("%s #%d %s (%s) next:%s %s\n", state, item.Code, item.Title, item.Repeat, next, mutedStyle.Render(item.GUID)))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func RenderSyncSummary(items []SyncSummaryData) string {
	var b strings.Builder
	b.WriteString("push:\n")
	for _, item := range items {
		if item.Err != nil {
			b.WriteString(fmt.Sprintf("[FAIL] %s: %v\n", item.Subject, item.Err))
			continue
		}
		b.WriteString(fmt.Sprintf("[OK] %s: pushed %d, pending %d, dropped %d\n",
			item.Subject, item.Result.Pushed, item.Result.Pending, item.Result.Dropped))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func describeRepeat(r model.RepeatRule) string {
	switch r.Type {
	case model.RepeatEveryNDays:
		return fmt.Sprintf("every %d days", r.Interval)
	case model.RepeatEveryNWeeks:
		return fmt.Sprintf("every %d weeks", r.Interval)
	case model.RepeatEveryInterval:
		return "every " + r.Every.String()
	case model.RepeatWeekdays:
		days := make([]string, 0, len(r.Weekdays))
		for _, d := range r.Weekdays {
			days = append(days, d.String()[:3])
		}
		return "on " + strings.Join(days, ",")
	default:
		return string(r.Type)
	}
}

func statusBadge(s model.ActivityStatus) string {
	switch s {
	case model.ActivityStatusExpired:
		return "[EXPIRED]"
	case model.ActivityStatusAvailable, model.ActivityStatusStarted:
		return "[" + strings.ToUpper(string(s)) + "]"
	default:
		return strings.ToLower(string(s))
	}
}
