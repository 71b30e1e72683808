package bridge

import (
	"fmt"

	"github.com/sagebionetworks/bridgesdk/internal/model"
)

func ReportFromWire(identifier string, in ReportData) (model.Report, error) {
	out := model.Report{Identifier: identifier, Data: in.Data}
	if in.DateTime != nil {
		ts := in.DateTime.UTC()
		out.Timestamp = &ts
		return out, nil
	}
	raw := in.LocalDate
	if raw == "" {
		raw = in.Date
	}
	d, err := model.ParseLocalDate(raw)
	if err != nil {
		return model.Report{}, fmt.Errorf("bridge: report %s has no usable date: %w", identifier, err)
	}
	out.LocalDate = &d
	return out, nil
}

func ReportToWire(in model.Report) ReportData {
	out := ReportData{Data: in.Data}
	if in.Timestamp != nil {
		ts := in.Timestamp.UTC()
		out.DateTime = &ts
	}
	if in.LocalDate != nil {
		out.LocalDate = model.FormatLocalDate(*in.LocalDate)
		out.Date = out.LocalDate
	}
	if len(out.Data) == 0 {
		out.Data = []byte("null")
	}
	return out
}

func ScheduleFromWire(in ScheduledActivity) model.ScheduledActivity {
	out := model.ScheduledActivity{
		GUID:             in.GUID,
		SchedulePlanGUID: in.SchedulePlanGUID,
		Label:            in.Activity.Label,
		LabelDetail:      in.Activity.LabelDetail,
		ActivityType:     model.ActivityType(in.Activity.ActivityType),
		ScheduledOn:      in.ScheduledOn.UTC(),
		ExpiresOn:        in.ExpiresOn,
		StartedOn:        in.StartedOn,
		FinishedOn:       in.FinishedOn,
		Persistent:       in.Persistent,
		ClientData:       in.ClientData,
	}
	if in.Activity.Task != nil {
		out.TaskIdentifier = in.Activity.Task.Identifier
	}
	if in.Activity.Survey != nil {
		out.SurveyGUID = in.Activity.Survey.GUID
		out.SurveyCreatedOn = in.Activity.Survey.CreatedOn
	}
	return out
}

func ScheduleToUpdate(in model.ScheduledActivity) ActivityUpdate {
	return ActivityUpdate{
		GUID:       in.GUID,
		StartedOn:  in.StartedOn,
		FinishedOn: in.FinishedOn,
		ClientData: in.ClientData,
	}
}
