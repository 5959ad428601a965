package provision

import (
	"strconv"

	"github.com/slack-go/slack"

	"github.com/alfredjeanlab/chanbot/internal/model"
)

// CallbackRequestDialog identifies submissions of the request dialog.
const CallbackRequestDialog = "channel_request_dialog"

// RequestDialog builds the request form, prefilled from prefill. A blank
// expiry is prefilled with defaultDays.
func RequestDialog(prefill model.ChannelRequest, defaultDays int) slack.Dialog {
	days := prefill.ExpireDays
	if days == "" && defaultDays > 0 {
		days = strconv.Itoa(defaultDays)
	}
	return slack.Dialog{
		CallbackID:  CallbackRequestDialog,
		Title:       "Request private channel",
		SubmitLabel: "Submit",
		Elements: []slack.DialogElement{
			slack.TextInputElement{
				DialogInput: slack.DialogInput{
					Type:  slack.InputTypeText,
					Label: "Channel name",
					Name:  model.FieldChannelName,
				},
				MinLength: 1,
				MaxLength: 21,
				Hint:      "May only contain lowercase letters, numbers, hyphens, and underscores.",
				Value:     prefill.ChannelName,
			},
			slack.DialogInputSelect{
				DialogInput: slack.DialogInput{
					Type:  slack.InputTypeSelect,
					Label: "Invite user",
					Name:  model.FieldInvitee,
				},
				DataSource: slack.DialogDataSourceUsers,
				Value:      prefill.InviteeID,
			},
			slack.TextInputElement{
				DialogInput: slack.DialogInput{
					Type:     slack.InputTypeText,
					Label:    "Organization/Customer",
					Name:     model.FieldOrganization,
					Optional: true,
				},
				Value: prefill.Organization,
			},
			slack.TextInputElement{
				DialogInput: slack.DialogInput{
					Type:  slack.InputTypeText,
					Label: "Days until expiry",
					Name:  model.FieldExpireDays,
				},
				Subtype: slack.InputSubtypeNumber,
				Hint:    "Enter a positive integer.",
				Value:   days,
			},
			slack.TextInputElement{
				DialogInput: slack.DialogInput{
					Type:     slack.InputTypeTextArea,
					Label:    "Purpose of channel",
					Name:     model.FieldPurpose,
					Optional: true,
				},
				MaxLength: 250,
				Value:     prefill.Purpose,
			},
		},
	}
}

// RequestFromSubmission reads the dialog fields.
func RequestFromSubmission(sub map[string]string) model.ChannelRequest {
	return model.ChannelRequest{
		ChannelName:  sub[model.FieldChannelName],
		InviteeID:    sub[model.FieldInvitee],
		Organization: sub[model.FieldOrganization],
		ExpireDays:   sub[model.FieldExpireDays],
		Purpose:      sub[model.FieldPurpose],
	}
}
