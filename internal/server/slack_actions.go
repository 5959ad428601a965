package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"github.com/alfredjeanlab/chanbot/internal/directory"
	"github.com/alfredjeanlab/chanbot/internal/lifecycle"
	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/platform"
	"github.com/alfredjeanlab/chanbot/internal/provision"
	"github.com/alfredjeanlab/chanbot/internal/store"
)

// Interaction replies.
const (
	RequestingText   = ":building_construction: Requesting private channel..."
	JoinedText       = "\n:white_check_mark: You have been invited to this channel."
	ArchivedText     = "\n:file_folder: This channel is now archived."
	AdoptedText      = "\n:white_check_mark: This channel is now managed."
	ExtendedWeekText = ":white_check_mark: Successfully extended channel length by a week."
	IgnoredText      = "Ok, this channel will expire within the week. You can ignore this."
	NotManagedText   = "That command won't work here because this channel isn't managed by me. Type `help` in my chat for more information."
	RejectedPrefix   = ":x: Could not create the channel. "
	RecordFailedText = "The channel was created but could not be recorded, so it will not expire automatically. Please contact an administrator."
)

const dialogCancellation = "dialog_cancellation"

// handleAction handles POST /action, the interaction payload of button
// clicks and dialog submissions.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &cb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	ctx := r.Context()

	switch cb.Type {
	case slack.InteractionTypeDialogSubmission:
		s.handleDialogSubmission(ctx, w, &cb)
		return
	case dialogCancellation:
		w.WriteHeader(http.StatusOK)
		return
	case slack.InteractionTypeInteractionMessage:
	default:
		s.log(ctx).Warn("unsupported interaction", "type", cb.Type, "callback", cb.CallbackID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if len(cb.ActionCallback.AttachmentActions) == 0 {
		writeError(w, http.StatusBadRequest, "no action in payload")
		return
	}
	action := cb.ActionCallback.AttachmentActions[0]

	var msg *slack.Msg
	switch cb.CallbackID {
	case directory.CallbackMenu:
		msg = s.menuAction(ctx, &cb, action)
	case directory.CallbackJoinChannel:
		msg = s.channelAction(ctx, &cb, action)
	case lifecycle.CallbackExpireWarning, lifecycle.CallbackExtend:
		msg = s.expiryAction(ctx, &cb, action)
	case directory.CallbackUnmanaged:
		msg = s.adoptAction(ctx, &cb, action)
	case directory.CallbackAdmin:
		msg = s.adminAction(ctx, &cb, action)
	default:
		s.log(ctx).Warn("unknown interaction callback", "callback", cb.CallbackID, "user", cb.User.ID)
	}

	if msg == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// menuAction handles the help menu buttons and listing page controls.
func (s *Server) menuAction(ctx context.Context, cb *slack.InteractionCallback, action *slack.AttachmentAction) *slack.Msg {
	log := s.log(ctx).With("user", cb.User.ID, "action", action.Name)
	switch action.Name {
	case directory.ActionRequestChannel:
		dialog := provision.RequestDialog(model.ChannelRequest{}, s.defaultDays)
		if err := s.platform.OpenDialog(ctx, cb.TriggerID, dialog); err != nil {
			log.Error("open request dialog", "code", platform.Code(err), "err", err)
			return &slack.Msg{Text: platform.FatalMessage, ResponseType: slack.ResponseTypeEphemeral}
		}
		reply := cb.OriginalMessage.Msg
		reply.Attachments = nil
		reply.Text = RequestingText
		reply.ReplaceOriginal = true
		return &reply
	case directory.ActionListChannels:
		req, err := directory.ParsePageRequest(action.Value)
		if err != nil {
			log.Warn("bad page request", "value", action.Value, "err", err)
		}
		listing, err := s.directory.List(ctx, req.Offset, req.SearchTerms)
		if err != nil {
			log.Error("list channels", "offset", req.Offset, "search", req.SearchTerms, "err", err)
			return &slack.Msg{Text: platform.FatalMessage, ResponseType: slack.ResponseTypeEphemeral}
		}
		reply := listing.Message()
		reply.ReplaceOriginal = true
		return &reply
	}
	log.Warn("unknown menu action")
	return nil
}

// channelAction handles the join and archive buttons of a listing entry.
func (s *Server) channelAction(ctx context.Context, cb *slack.InteractionCallback, action *slack.AttachmentAction) *slack.Msg {
	channelID := action.Value
	log := s.log(ctx).With("user", cb.User.ID, "action", action.Name, "channel", channelID)

	switch action.Name {
	case directory.ActionJoinChannel:
		err := s.platform.InviteUsers(ctx, channelID, cb.User.ID)
		if err != nil && platform.Code(err) != platform.CodeAlreadyInChannel {
			log.Error("invite user", "code", platform.Code(err), "err", err)
			return &slack.Msg{Text: platform.FatalMessage, ResponseType: slack.ResponseTypeEphemeral}
		}
		log.Info("user joined channel")
		return markEntry(cb.OriginalMessage.Msg, channelID, "good", JoinedText, false)

	case directory.ActionArchiveChannel:
		if msg := s.requireAuthorized(ctx, cb.User.ID); msg != nil {
			return msg
		}
		if err := s.manager.Archive(ctx, channelID, cb.User.ID); err != nil {
			log.Error("archive channel", "code", platform.Code(err), "err", err)
			return &slack.Msg{Text: platform.FatalMessage, ResponseType: slack.ResponseTypeEphemeral}
		}
		return markEntry(cb.OriginalMessage.Msg, channelID, "warning", ArchivedText, true)
	}
	log.Warn("unknown channel action")
	return nil
}

// expiryAction handles the extend and ignore buttons of the expiry reminder
// and the extend offer.
func (s *Server) expiryAction(ctx context.Context, cb *slack.InteractionCallback, action *slack.AttachmentAction) *slack.Msg {
	channelID := cb.Channel.ID
	log := s.log(ctx).With("user", cb.User.ID, "action", action.Name, "channel", channelID)

	switch action.Name {
	case lifecycle.ActionExtend:
		_, err := s.manager.Extend(ctx, channelID, lifecycle.ExtendDays, cb.User.ID)
		switch {
		case errors.Is(err, lifecycle.ErrNotManaged):
			return &slack.Msg{Text: NotManagedText, ReplaceOriginal: true}
		case err != nil:
			log.Error("extend channel", "err", err)
			return &slack.Msg{Text: platform.FatalMessage, ResponseType: slack.ResponseTypeEphemeral}
		}
		return &slack.Msg{Text: ExtendedWeekText, ReplaceOriginal: true}
	case lifecycle.ActionIgnore:
		return &slack.Msg{Text: IgnoredText, ReplaceOriginal: true}
	}
	log.Warn("unknown expiry action")
	return nil
}

// adoptAction handles "Add Channel Manager" on an unmanaged listing entry.
func (s *Server) adoptAction(ctx context.Context, cb *slack.InteractionCallback, action *slack.AttachmentAction) *slack.Msg {
	channelID := action.Value
	log := s.log(ctx).With("user", cb.User.ID, "action", action.Name, "channel", channelID)
	if action.Name != directory.ActionAddManager {
		log.Warn("unknown unmanaged channel action")
		return nil
	}
	if msg := s.requireAuthorized(ctx, cb.User.ID); msg != nil {
		return msg
	}
	_, err := s.manager.Adopt(ctx, channelID, cb.User.ID)
	if err != nil && !errors.Is(err, store.ErrDuplicateKey) {
		log.Error("adopt channel", "code", platform.Code(err), "err", err)
		return &slack.Msg{Text: platform.FatalMessage, ResponseType: slack.ResponseTypeEphemeral}
	}
	return markEntry(cb.OriginalMessage.Msg, channelID, "good", AdoptedText, true)
}

// adminAction handles the unmanaged listing page controls.
func (s *Server) adminAction(ctx context.Context, cb *slack.InteractionCallback, action *slack.AttachmentAction) *slack.Msg {
	if action.Name != directory.ActionListUnmanaged {
		s.log(ctx).Warn("unknown admin action", "user", cb.User.ID, "action", action.Name)
		return nil
	}
	pos, err := directory.ParsePosition(action.Value)
	if err != nil {
		s.log(ctx).Warn("bad unmanaged position", "value", action.Value, "err", err)
	}
	msg := s.unmanagedPage(ctx, cb.User.ID, pos)
	msg.ReplaceOriginal = true
	return &msg
}

// handleDialogSubmission answers field errors in the dialog itself and
// acknowledges anything valid at once; provisioning then runs in the
// background and its outcome goes to the response URL.
func (s *Server) handleDialogSubmission(ctx context.Context, w http.ResponseWriter, cb *slack.InteractionCallback) {
	if cb.CallbackID != provision.CallbackRequestDialog {
		s.log(ctx).Warn("unknown dialog", "callback", cb.CallbackID)
		w.WriteHeader(http.StatusOK)
		return
	}
	req := provision.RequestFromSubmission(cb.Submission)
	req.Normalize()
	if err := model.ValidateChannelRequest(&req, cb.User.ID); err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusOK, dialogErrors(ve))
			return
		}
		s.log(ctx).Error("validate channel request", "user", cb.User.ID, "err", err)
		writeError(w, http.StatusBadRequest, "invalid submission")
		return
	}
	w.WriteHeader(http.StatusOK)

	userID, responseURL := cb.User.ID, cb.ResponseURL
	s.goBackground(ctx, func(ctx context.Context) {
		reply := s.provisionReply(ctx, req, userID)
		if responseURL == "" {
			return
		}
		if err := s.platform.Respond(ctx, responseURL, reply); err != nil {
			s.log(ctx).Error("respond to dialog", "user", userID, "err", err)
		}
	})
}

func (s *Server) provisionReply(ctx context.Context, req model.ChannelRequest, userID string) slack.Msg {
	log := s.log(ctx).With("user", userID)
	c, err := s.provisioner.Provision(ctx, req, userID)
	var ve *model.ValidationError
	var se *provision.StepError
	switch {
	case errors.As(err, &ve):
		log.Info("channel request rejected", "err", err)
		return slack.Msg{Text: rejectedText(ve)}
	case errors.As(err, &se):
		return slack.Msg{Text: RecordFailedText}
	case err != nil:
		log.Error("provision channel", "code", platform.Code(err), "err", err)
		return slack.Msg{Text: platform.FatalMessage}
	}
	return slack.Msg{Text: provision.SuccessText(c)}
}

// rejectedText reports field errors found after the dialog closed.
func rejectedText(ve *model.ValidationError) string {
	msgs := make([]string, 0, len(ve.Errors))
	for _, fe := range ve.Errors {
		msgs = append(msgs, fe.Message)
	}
	return RejectedPrefix + strings.Join(msgs, " ")
}

func dialogErrors(ve *model.ValidationError) slack.DialogInputValidationErrors {
	out := slack.DialogInputValidationErrors{}
	for _, fe := range ve.Errors {
		out.Errors = append(out.Errors, slack.DialogInputValidationError{Name: fe.Field, Error: fe.Message})
	}
	return out
}

// requireAuthorized returns the reply for a user who may not perform admin
// actions, or nil when the user may.
func (s *Server) requireAuthorized(ctx context.Context, userID string) *slack.Msg {
	ok, err := s.authorized(ctx, userID)
	if err != nil {
		s.log(ctx).Error("check authorization", "user", userID, "err", err)
		return &slack.Msg{Text: platform.FatalMessage, ResponseType: slack.ResponseTypeEphemeral}
	}
	if !ok {
		s.log(ctx).Warn("unauthorized action", "user", userID)
		return &slack.Msg{Text: UnauthorizedText, ResponseType: slack.ResponseTypeEphemeral}
	}
	return nil
}

// markEntry returns original with the entry for channelID recolored and
// annotated. The entry loses its first action, or all of them when
// dropActions is set.
func markEntry(original slack.Msg, channelID, color, note string, dropActions bool) *slack.Msg {
	reply := original
	reply.Attachments = make([]slack.Attachment, len(original.Attachments))
	copy(reply.Attachments, original.Attachments)
	for i := range reply.Attachments {
		a := &reply.Attachments[i]
		if len(a.Actions) == 0 || a.Actions[0].Value != channelID {
			continue
		}
		if dropActions {
			a.Actions = nil
		} else {
			a.Actions = append([]slack.AttachmentAction(nil), a.Actions[1:]...)
		}
		a.Color = color
		a.Text += note
		break
	}
	reply.ReplaceOriginal = true
	return &reply
}
