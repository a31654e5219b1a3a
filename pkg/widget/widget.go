// Package widget is the composition pipeline behind a conversational input
// box: it owns the free text and the single optional attachment, classifies
// selected files, ingests them through the encoder or the extraction
// endpoint, and hands the composed payload to a send callback.
package widget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/askbox/askbox/pkg/compose"
	"github.com/askbox/askbox/pkg/extract"
	"github.com/askbox/askbox/pkg/logger"
	"github.com/askbox/askbox/pkg/media"
)

// CommitKey is the keyboard action that submits the current input.
const CommitKey = "Enter"

var (
	// ErrAttachmentsDisabled is returned by Attach when the host disabled
	// the attachment subsystem entirely.
	ErrAttachmentsDisabled = errors.New("attachments are disabled")

	// ErrSuperseded is returned when an ingestion completes after newer
	// attachment state was committed; the stale result is discarded.
	ErrSuperseded = errors.New("ingestion superseded by newer attachment state")
)

// SendFunc receives the composed message and the target conversation id,
// empty when the host supplied none. The widget never observes its outcome.
type SendFunc func(content compose.Message, conversationID string)

// Extractor uploads a document and returns its extracted representation.
// *extract.Client is the production implementation.
type Extractor interface {
	Upload(ctx context.Context, name string, r io.Reader) (*extract.Result, error)
}

// Notifier surfaces user-facing diagnostics (the blocking-alert analogue).
type Notifier interface {
	Alert(message string)
}

type logNotifier struct{}

func (logNotifier) Alert(message string) {
	logger.WarnCF("widget", message, nil)
}

// Key is a keyboard event as the host reports it.
type Key struct {
	Name      string
	Shift     bool
	Composing bool // an IME composition session is active
}

// Options is the host configuration, passed explicitly at construction.
type Options struct {
	OnSend         SendFunc
	Disabled       bool
	Placeholder    string
	ClearOnSend    bool
	ConversationID string

	// Attachments gates the whole attachment subsystem. When false, Attach
	// fails before touching the classifier.
	Attachments bool

	ImageMaxWidth  int
	ImageMaxHeight int
	PreviewLimit   int

	Extractor Extractor
	Template  compose.Template
	Notifier  Notifier
}

// Widget holds the pending message state. All exported methods are safe for
// concurrent use; overlapping ingestions resolve through a sequence guard
// so a stale completion never overwrites newer state.
type Widget struct {
	mu         sync.Mutex
	text       string
	attachment media.Attachment
	seq        uint64
	disabled   bool

	opts     Options
	composer *compose.Composer
	notifier Notifier
}

func New(opts Options) *Widget {
	if opts.ImageMaxWidth <= 0 {
		opts.ImageMaxWidth = 800
	}
	if opts.ImageMaxHeight <= 0 {
		opts.ImageMaxHeight = 800
	}
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = 500
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = logNotifier{}
	}
	return &Widget{
		opts:     opts,
		disabled: opts.Disabled,
		composer: compose.New(opts.Template),
		notifier: notifier,
	}
}

// SetText replaces the free text verbatim.
func (w *Widget) SetText(text string) {
	w.mu.Lock()
	w.text = text
	w.mu.Unlock()
}

func (w *Widget) Text() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.text
}

// SetDisabled updates the host-supplied disabled state.
func (w *Widget) SetDisabled(disabled bool) {
	w.mu.Lock()
	w.disabled = disabled
	w.mu.Unlock()
}

// SendDisabled reports whether submit is currently gated: the host disabled
// the widget, or the trimmed text is empty. An attachment alone never
// enables send.
func (w *Widget) SendDisabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sendDisabledLocked()
}

func (w *Widget) sendDisabledLocked() bool {
	return w.disabled || strings.TrimSpace(w.text) == ""
}

// HandleKey reports whether the key was consumed (the caller's cue to
// suppress the default action). The commit key without shift and outside an
// IME composition triggers submit; the gate inside Submit still applies.
func (w *Widget) HandleKey(k Key) bool {
	if k.Name != CommitKey || k.Shift || k.Composing {
		return false
	}
	w.Submit()
	return true
}

// Attachment returns the active attachment, nil when none.
func (w *Widget) Attachment() media.Attachment {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attachment
}

// RemoveAttachment clears the slot and invalidates in-flight ingestions.
func (w *Widget) RemoveAttachment() {
	w.mu.Lock()
	w.attachment = nil
	w.seq++
	w.mu.Unlock()
}

// Attach classifies the file by its declared media type and ingests it:
// images are encoded locally into a bounded data URL, everything else is
// uploaded for text extraction. The committed attachment replaces whatever
// was active before, so image and document stay mutually exclusive. On
// failure the attachment state is left untouched.
func (w *Widget) Attach(ctx context.Context, file media.File) error {
	if !w.opts.Attachments {
		return ErrAttachmentsDisabled
	}

	mediaType := file.MediaType
	if mediaType == "" {
		mediaType = media.TypeByName(file.Name)
	}

	seq := w.beginIngestion()

	switch media.Classify(mediaType) {
	case media.KindImage:
		return w.ingestImage(seq, file)
	default:
		return w.ingestDocument(ctx, seq, file)
	}
}

func (w *Widget) ingestImage(seq uint64, file media.File) error {
	encoded, err := media.EncodeImage(file.Reader, w.opts.ImageMaxWidth, w.opts.ImageMaxHeight)
	if err != nil {
		// Recovered locally: log and stay usable, no state change.
		logger.WarnCF("widget", "Image encode failed", map[string]interface{}{
			"filename": file.Name,
			"error":    err.Error(),
		})
		return fmt.Errorf("encoding %s: %w", file.Name, err)
	}

	if !w.commit(seq, media.ImageAttachment{EncodedData: encoded}) {
		return ErrSuperseded
	}
	logger.InfoCF("widget", "Image attached", map[string]interface{}{"filename": file.Name})
	return nil
}

func (w *Widget) ingestDocument(ctx context.Context, seq uint64, file media.File) error {
	if w.opts.Extractor == nil {
		err := errors.New("no extraction endpoint configured")
		w.notifier.Alert(fmt.Sprintf("Upload failed: %v", err))
		logger.WarnCF("widget", "Document upload failed", map[string]interface{}{
			"filename": file.Name,
			"error":    err.Error(),
		})
		return err
	}
	result, err := w.opts.Extractor.Upload(ctx, file.Name, file.Reader)
	if err != nil {
		var statusErr *extract.StatusError
		if errors.As(err, &statusErr) {
			w.notifier.Alert(fmt.Sprintf("Upload failed: %s", statusErr.Message))
		} else {
			w.notifier.Alert(fmt.Sprintf("Upload failed: %v", err))
		}
		logger.WarnCF("widget", "Document upload failed", map[string]interface{}{
			"filename": file.Name,
			"error":    err.Error(),
		})
		return fmt.Errorf("uploading %s: %w", file.Name, err)
	}

	att := media.DocumentAttachment{
		Filename:    result.Filename,
		UploadID:    result.UploadID,
		FullText:    result.ExtractedText,
		PreviewText: media.Preview(result.ExtractedText, w.opts.PreviewLimit),
	}
	if att.Filename == "" {
		att.Filename = file.Name
	}

	if !w.commit(seq, att) {
		return ErrSuperseded
	}
	logger.InfoCF("widget", "Document attached", map[string]interface{}{
		"filename":   att.Filename,
		"uploadId":   att.UploadID,
		"textLength": len(att.FullText),
	})
	return nil
}

// beginIngestion claims a sequence number for a new ingestion attempt;
// commit applies a result only while that number is still the latest.
func (w *Widget) beginIngestion() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	return w.seq
}

func (w *Widget) commit(seq uint64, att media.Attachment) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq != w.seq {
		return false
	}
	w.attachment = att
	return true
}

// Submit composes the outgoing message and invokes the send callback once.
// The attachment slot always clears; the text clears only under
// ClearOnSend. The callback's outcome is deliberately not observed.
func (w *Widget) Submit() bool {
	w.mu.Lock()
	if w.sendDisabledLocked() {
		w.mu.Unlock()
		return false
	}

	msg := w.composer.Compose(w.text, w.attachment)
	w.attachment = nil
	w.seq++ // in-flight ingestions must not resurrect a cleared slot
	if w.opts.ClearOnSend {
		w.text = ""
	}
	onSend := w.opts.OnSend
	conversationID := w.opts.ConversationID
	w.mu.Unlock()

	if onSend != nil {
		onSend(msg, conversationID)
	}
	return true
}
