package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/amishk599/jobrelay/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAPI records Bot API calls.
type fakeAPI struct {
	sent      []*bot.SendMessageParams
	documents []*bot.SendDocumentParams
	docBodies []string
	edits     []*bot.EditMessageTextParams
	answers   []*bot.AnswerCallbackQueryParams
	err       error
	chatID    int64
	nextID    int
}

func (f *fakeAPI) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.sent = append(f.sent, p)
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	return &models.Message{ID: f.nextID, Chat: models.Chat{ID: f.chatID}}, nil
}

func (f *fakeAPI) SendDocument(_ context.Context, p *bot.SendDocumentParams) (*models.Message, error) {
	f.documents = append(f.documents, p)
	if upload, ok := p.Document.(*models.InputFileUpload); ok {
		b, _ := io.ReadAll(upload.Data)
		f.docBodies = append(f.docBodies, string(b))
	}
	return &models.Message{}, f.err
}

func (f *fakeAPI) EditMessageText(_ context.Context, p *bot.EditMessageTextParams) (*models.Message, error) {
	f.edits = append(f.edits, p)
	return &models.Message{}, f.err
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, p *bot.AnswerCallbackQueryParams) (bool, error) {
	f.answers = append(f.answers, p)
	return f.err == nil, f.err
}

func TestSendInteractive_EncodesIDAndKeyboard(t *testing.T) {
	api := &fakeAPI{chatID: 4242}
	m := NewMessenger(api, discardLogger())

	id, err := m.SendInteractive(context.Background(), "4242", "New job", [][]model.Action{
		{{Kind: model.ActionConfirm, Label: "Confirm", Fingerprint: "abc"}, {Kind: model.ActionSkip, Label: "Skip", Fingerprint: "abc"}},
		{{Kind: model.ActionFullText, Label: "Full", Fingerprint: "abc"}},
	})
	if err != nil {
		t.Fatalf("SendInteractive: %v", err)
	}
	if id != "4242:1" {
		t.Errorf("id = %q, want 4242:1", id)
	}

	p := api.sent[0]
	if p.ChatID != int64(4242) {
		t.Errorf("ChatID = %#v", p.ChatID)
	}
	kb, ok := p.ReplyMarkup.(*models.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("ReplyMarkup = %T", p.ReplyMarkup)
	}
	if len(kb.InlineKeyboard) != 2 || kb.InlineKeyboard[0][1].CallbackData != "skip:abc" || kb.InlineKeyboard[1][0].CallbackData != "full:abc" {
		t.Errorf("keyboard = %+v", kb.InlineKeyboard)
	}
}

func TestSendText_UsernameRecipient(t *testing.T) {
	api := &fakeAPI{}
	m := NewMessenger(api, discardLogger())

	if err := m.SendText(context.Background(), "@hr_team", "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := m.SendText(context.Background(), "hr_team", "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if api.sent[0].ChatID != "@hr_team" || api.sent[1].ChatID != "@hr_team" {
		t.Errorf("ChatIDs = %#v, %#v", api.sent[0].ChatID, api.sent[1].ChatID)
	}
}

func TestSendFile_UploadsContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cv.pdf")
	os.WriteFile(path, []byte("pdf-bytes"), 0o644)
	api := &fakeAPI{}
	m := NewMessenger(api, discardLogger())

	if err := m.SendFile(context.Background(), "@hr", path, "My resume"); err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	upload := api.documents[0].Document.(*models.InputFileUpload)
	if upload.Filename != "cv.pdf" || api.docBodies[0] != "pdf-bytes" || api.documents[0].Caption != "My resume" {
		t.Errorf("document = %+v body %q", upload, api.docBodies[0])
	}

	err := m.SendFile(context.Background(), "@hr", filepath.Join(t.TempDir(), "missing.pdf"), "")
	if model.SendErrorKindOf(err) != model.KindPermanent {
		t.Errorf("missing file: err = %v, want permanent", err)
	}
}

func TestEditMessage(t *testing.T) {
	api := &fakeAPI{}
	m := NewMessenger(api, discardLogger())

	err := m.EditMessage(context.Background(), "100", "100:7", "done", [][]model.Action{{{Kind: model.ActionFullText, Label: "Full", Fingerprint: "fp"}}})
	if err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if api.edits[0].ChatID != int64(100) || api.edits[0].MessageID != 7 {
		t.Errorf("edit = %+v", api.edits[0])
	}

	api.err = fmt.Errorf("%w, %s", bot.ErrorBadRequest, "Bad Request: message is not modified")
	if err := m.EditMessage(context.Background(), "100", "100:7", "done", nil); err != nil {
		t.Errorf("not-modified should be ignored, got %v", err)
	}

	if err := m.EditMessage(context.Background(), "100", "garbage", "done", nil); err == nil {
		t.Error("expected error for malformed message id")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  model.SendErrorKind
		wantAfter time.Duration
	}{
		{"flood wait", &bot.TooManyRequestsError{Message: "Too Many Requests: retry after 17", RetryAfter: 17}, model.KindRateLimited, 17 * time.Second},
		{"blocked by user", fmt.Errorf("%w, %s", bot.ErrorForbidden, "Forbidden: bot was blocked by the user"), model.KindPermanent, 0},
		{"privacy", fmt.Errorf("%w, %s", bot.ErrorBadRequest, "Bad Request: USER_PRIVACY_RESTRICTED"), model.KindPermanent, 0},
		{"chat not found", fmt.Errorf("%w, %s", bot.ErrorBadRequest, "Bad Request: chat not found"), model.KindPermanent, 0},
		{"other bad request", fmt.Errorf("%w, %s", bot.ErrorBadRequest, "Bad Request: can't parse entities"), model.KindUnknown, 0},
		{"network", fmt.Errorf("error do request for method sendMessage, %w", timeoutErr{}), model.KindTransient, 0},
		{"anything else", errors.New("boom"), model.KindUnknown, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError(tt.err)
			var se *model.SendError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *model.SendError", err)
			}
			if se.Kind != tt.wantKind || se.RetryAfter != tt.wantAfter {
				t.Errorf("got kind %v after %v, want %v after %v", se.Kind, se.RetryAfter, tt.wantKind, tt.wantAfter)
			}
			if !errors.Is(err, tt.err) {
				t.Error("original error not preserved")
			}
		})
	}
}

func TestCallbackRoundTrip(t *testing.T) {
	data := EncodeCallback(model.ActionConfirm, "0123456789abcdef0123456789abcdef")
	if len(data) > 64 {
		t.Fatalf("callback data %d bytes, limit 64", len(data))
	}
	kind, fp, err := ParseCallback(data)
	if err != nil || kind != model.ActionConfirm || fp != "0123456789abcdef0123456789abcdef" {
		t.Errorf("ParseCallback = %v %q %v", kind, fp, err)
	}

	for _, bad := range []string{"", "confirm", "confirm:", "delete:abc"} {
		if _, _, err := ParseCallback(bad); err == nil {
			t.Errorf("ParseCallback(%q) should fail", bad)
		}
	}
}

func TestDecodeMessageID(t *testing.T) {
	chat, id, err := DecodeMessageID(EncodeMessageID(-1001234567890, 55))
	if err != nil || chat != -1001234567890 || id != 55 {
		t.Errorf("DecodeMessageID = %d %d %v", chat, id, err)
	}
}
