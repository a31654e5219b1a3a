package widget

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/askbox/askbox/pkg/compose"
	"github.com/askbox/askbox/pkg/extract"
	"github.com/askbox/askbox/pkg/media"
)

type sendRecorder struct {
	calls    int
	lastMsg  compose.Message
	lastConv string
}

func (r *sendRecorder) fn(msg compose.Message, conversationID string) {
	r.calls++
	r.lastMsg = msg
	r.lastConv = conversationID
}

type stubExtractor struct {
	result *extract.Result
	err    error
	// entered/release coordinate slow-upload tests.
	entered chan struct{}
	release chan struct{}
}

func (s *stubExtractor) Upload(ctx context.Context, name string, r io.Reader) (*extract.Result, error) {
	if s.entered != nil {
		close(s.entered)
	}
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	if res.Filename == "" {
		res.Filename = name
	}
	return &res, nil
}

type alertRecorder struct {
	alerts []string
}

func (a *alertRecorder) Alert(message string) {
	a.alerts = append(a.alerts, message)
}

func pngFile(t *testing.T, name string) media.File {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encoding fixture png: %v", err)
	}
	return media.File{Name: name, MediaType: "image/png", Reader: &buf}
}

func docFile(name string) media.File {
	return media.File{Name: name, MediaType: "application/pdf", Reader: strings.NewReader("raw bytes")}
}

func newTestWidget(rec *sendRecorder, opts Options) *Widget {
	if rec != nil {
		opts.OnSend = rec.fn
	}
	opts.Attachments = true
	return New(opts)
}

func TestSubmit_PlainText(t *testing.T) {
	rec := &sendRecorder{}
	w := newTestWidget(rec, Options{ClearOnSend: true})

	w.SetText("hello there")
	if !w.Submit() {
		t.Fatal("Submit returned false for valid text")
	}

	if rec.calls != 1 {
		t.Fatalf("OnSend called %d times, want 1", rec.calls)
	}
	if !rec.lastMsg.Plain() || rec.lastMsg.Text != "hello there" {
		t.Errorf("sent message = %+v, want plain %q", rec.lastMsg, "hello there")
	}
	if rec.lastConv != "" {
		t.Errorf("conversation id = %q, want empty", rec.lastConv)
	}
	if w.Text() != "" {
		t.Errorf("text not cleared with ClearOnSend: %q", w.Text())
	}
}

func TestSubmit_RetainsTextWithoutClearOnSend(t *testing.T) {
	rec := &sendRecorder{}
	w := newTestWidget(rec, Options{ClearOnSend: false})

	w.SetText("keep me")
	w.Submit()

	if w.Text() != "keep me" {
		t.Errorf("text = %q, want retained %q", w.Text(), "keep me")
	}
}

func TestSubmit_PassesConversationID(t *testing.T) {
	rec := &sendRecorder{}
	w := newTestWidget(rec, Options{ConversationID: "conv-7"})

	w.SetText("hi")
	w.Submit()

	if rec.lastConv != "conv-7" {
		t.Errorf("conversation id = %q, want conv-7", rec.lastConv)
	}
}

func TestSendDisabled(t *testing.T) {
	w := newTestWidget(&sendRecorder{}, Options{})

	if !w.SendDisabled() {
		t.Error("empty text should disable send")
	}
	w.SetText("   \t\n")
	if !w.SendDisabled() {
		t.Error("whitespace-only text should disable send")
	}
	w.SetText("ready")
	if w.SendDisabled() {
		t.Error("non-whitespace text should enable send")
	}
	w.SetDisabled(true)
	if !w.SendDisabled() {
		t.Error("host disabled flag should gate send")
	}
}

func TestSendDisabled_AttachmentAloneDoesNotEnable(t *testing.T) {
	rec := &sendRecorder{}
	w := newTestWidget(rec, Options{})

	if err := w.Attach(context.Background(), pngFile(t, "pic.png")); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if !w.SendDisabled() {
		t.Error("attachment without text must not enable send")
	}
	if w.Submit() {
		t.Error("Submit must no-op while disabled")
	}
	if rec.calls != 0 {
		t.Errorf("OnSend called %d times, want 0", rec.calls)
	}
}

func TestHandleKey(t *testing.T) {
	rec := &sendRecorder{}
	w := newTestWidget(rec, Options{})
	w.SetText("question")

	if w.HandleKey(Key{Name: "a"}) {
		t.Error("plain character must not be consumed")
	}
	if w.HandleKey(Key{Name: CommitKey, Shift: true}) {
		t.Error("shift+commit inserts a newline, must not be consumed")
	}
	if w.HandleKey(Key{Name: CommitKey, Composing: true}) {
		t.Error("commit during IME composition must not submit")
	}
	if rec.calls != 0 {
		t.Fatalf("OnSend called %d times before the commit key", rec.calls)
	}

	if !w.HandleKey(Key{Name: CommitKey}) {
		t.Error("commit key must be consumed")
	}
	if rec.calls != 1 {
		t.Errorf("OnSend called %d times, want 1", rec.calls)
	}
}

func TestHandleKey_ConsumedEvenWhenGated(t *testing.T) {
	rec := &sendRecorder{}
	w := newTestWidget(rec, Options{})
	// Empty text: submit no-ops but the key default is still suppressed.
	if !w.HandleKey(Key{Name: CommitKey}) {
		t.Error("commit key must be consumed regardless of the send gate")
	}
	if rec.calls != 0 {
		t.Errorf("OnSend called %d times, want 0", rec.calls)
	}
}

func TestAttach_Image(t *testing.T) {
	w := newTestWidget(&sendRecorder{}, Options{})

	if err := w.Attach(context.Background(), pngFile(t, "photo.png")); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	img, ok := w.Attachment().(media.ImageAttachment)
	if !ok {
		t.Fatalf("attachment = %T, want ImageAttachment", w.Attachment())
	}
	if !strings.HasPrefix(img.EncodedData, "data:image/jpeg;base64,") {
		t.Errorf("encoded data does not look like a data URL: %.40s", img.EncodedData)
	}
}

func TestAttach_Document(t *testing.T) {
	ext := &stubExtractor{result: &extract.Result{
		ExtractedText: strings.Repeat("x", 600),
		Filename:      "report.pdf",
		UploadID:      "up-1",
	}}
	w := newTestWidget(&sendRecorder{}, Options{Extractor: ext, PreviewLimit: 500})

	if err := w.Attach(context.Background(), docFile("report.pdf")); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	doc, ok := w.Attachment().(media.DocumentAttachment)
	if !ok {
		t.Fatalf("attachment = %T, want DocumentAttachment", w.Attachment())
	}
	if doc.Filename != "report.pdf" || doc.UploadID != "up-1" {
		t.Errorf("document metadata = %+v", doc)
	}
	if len(doc.FullText) != 600 {
		t.Errorf("full text length = %d, want 600 (never truncated)", len(doc.FullText))
	}
	if doc.PreviewText != strings.Repeat("x", 500)+"..." {
		t.Errorf("preview not bounded: %d chars", len(doc.PreviewText))
	}
}

func TestAttach_MutualExclusivity(t *testing.T) {
	ext := &stubExtractor{result: &extract.Result{ExtractedText: "doc text", UploadID: "up-2"}}
	w := newTestWidget(&sendRecorder{}, Options{Extractor: ext})
	ctx := context.Background()

	// Document then image: image wins.
	if err := w.Attach(ctx, docFile("a.pdf")); err != nil {
		t.Fatalf("attach document: %v", err)
	}
	if err := w.Attach(ctx, pngFile(t, "b.png")); err != nil {
		t.Fatalf("attach image: %v", err)
	}
	if _, ok := w.Attachment().(media.ImageAttachment); !ok {
		t.Errorf("attachment = %T, want ImageAttachment after image selection", w.Attachment())
	}

	// Image then document: document wins.
	if err := w.Attach(ctx, docFile("c.pdf")); err != nil {
		t.Fatalf("attach document: %v", err)
	}
	if _, ok := w.Attachment().(media.DocumentAttachment); !ok {
		t.Errorf("attachment = %T, want DocumentAttachment after document selection", w.Attachment())
	}
}

func TestAttach_DisabledFeatureFlag(t *testing.T) {
	w := New(Options{Attachments: false})

	err := w.Attach(context.Background(), pngFile(t, "p.png"))
	if !errors.Is(err, ErrAttachmentsDisabled) {
		t.Errorf("err = %v, want ErrAttachmentsDisabled", err)
	}
	if w.Attachment() != nil {
		t.Error("attachment state must stay empty when the subsystem is off")
	}
}

func TestAttach_EncodeFailureLeavesStateUntouched(t *testing.T) {
	ext := &stubExtractor{result: &extract.Result{ExtractedText: "doc", UploadID: "up-3"}}
	w := newTestWidget(&sendRecorder{}, Options{Extractor: ext})
	ctx := context.Background()

	if err := w.Attach(ctx, docFile("keep.pdf")); err != nil {
		t.Fatalf("attach document: %v", err)
	}
	bad := media.File{Name: "broken.png", MediaType: "image/png", Reader: strings.NewReader("junk")}
	if err := w.Attach(ctx, bad); err == nil {
		t.Fatal("expected encode error")
	}

	if doc, ok := w.Attachment().(media.DocumentAttachment); !ok || doc.UploadID != "up-3" {
		t.Errorf("attachment = %#v, want the prior document untouched", w.Attachment())
	}
}

func TestAttach_UploadRejectedSurfacesServerMessage(t *testing.T) {
	alerts := &alertRecorder{}
	ext := &stubExtractor{err: &extract.StatusError{Code: 500, Message: "extraction exploded"}}
	w := newTestWidget(&sendRecorder{}, Options{Extractor: ext, Notifier: alerts})

	err := w.Attach(context.Background(), docFile("bad.pdf"))
	if err == nil {
		t.Fatal("expected upload error")
	}
	if w.Attachment() != nil {
		t.Error("failed upload must not mutate attachment state")
	}
	if len(alerts.alerts) != 1 || !strings.Contains(alerts.alerts[0], "extraction exploded") {
		t.Errorf("alerts = %v, want the server-provided message surfaced", alerts.alerts)
	}
}

func TestAttach_TransportFailureSurfaced(t *testing.T) {
	alerts := &alertRecorder{}
	ext := &stubExtractor{err: errors.New("connection refused")}
	w := newTestWidget(&sendRecorder{}, Options{Extractor: ext, Notifier: alerts})

	if err := w.Attach(context.Background(), docFile("a.pdf")); err == nil {
		t.Fatal("expected transport error")
	}
	if len(alerts.alerts) != 1 {
		t.Errorf("alerts = %v, want exactly one diagnostic", alerts.alerts)
	}
	if w.Attachment() != nil {
		t.Error("failed upload must not mutate attachment state")
	}
}

func TestAttach_NoExtractorConfigured(t *testing.T) {
	alerts := &alertRecorder{}
	w := newTestWidget(&sendRecorder{}, Options{Notifier: alerts})

	err := w.Attach(context.Background(), docFile("a.pdf"))
	if err == nil {
		t.Fatal("expected error without an extractor")
	}
	if len(alerts.alerts) != 1 || !strings.Contains(alerts.alerts[0], "Upload failed") {
		t.Errorf("alerts = %v, want the failure surfaced like any other upload failure", alerts.alerts)
	}
	if w.Attachment() != nil {
		t.Error("attachment state must stay empty")
	}
}

func TestSubmit_ClearsAttachmentSlots(t *testing.T) {
	rec := &sendRecorder{}
	ext := &stubExtractor{result: &extract.Result{ExtractedText: "Q3 revenue rose 12%.", UploadID: "up-4"}}
	w := newTestWidget(rec, Options{Extractor: ext})

	if err := w.Attach(context.Background(), docFile("report.pdf")); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	w.SetText("Summarize this")
	w.Submit()

	if w.Attachment() != nil {
		t.Error("attachment slot must be empty after submit")
	}
	if rec.calls != 1 {
		t.Fatalf("OnSend called %d times, want 1", rec.calls)
	}
}

func TestSubmit_DocumentScenario(t *testing.T) {
	rec := &sendRecorder{}
	ext := &stubExtractor{result: &extract.Result{
		ExtractedText: "Q3 revenue rose 12%.",
		Filename:      "report.pdf",
		UploadID:      "up-5",
	}}
	w := newTestWidget(rec, Options{Extractor: ext})

	if err := w.Attach(context.Background(), docFile("report.pdf")); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	w.SetText("Summarize this")
	if !w.HandleKey(Key{Name: CommitKey}) {
		t.Fatal("commit key not consumed")
	}

	want := "Summarize this\n\n" +
		"--- Document Content (report.pdf) ---\n" +
		"Q3 revenue rose 12%.\n" +
		"--- End of Document ---\n\n" +
		"Please analyze the above document and answer my question."
	if rec.calls != 1 {
		t.Fatalf("OnSend called %d times, want 1", rec.calls)
	}
	if !rec.lastMsg.Plain() || rec.lastMsg.Text != want {
		t.Errorf("sent message:\n%q\nwant:\n%q", rec.lastMsg.Text, want)
	}
	if w.Attachment() != nil {
		t.Error("attachment slot must be empty immediately after send")
	}
}

func TestSubmit_ImageShape(t *testing.T) {
	rec := &sendRecorder{}
	w := newTestWidget(rec, Options{})

	if err := w.Attach(context.Background(), pngFile(t, "photo.png")); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	w.SetText("what is in this picture?")
	w.Submit()

	msg := rec.lastMsg
	if msg.Plain() || len(msg.Parts) != 2 {
		t.Fatalf("sent message = %+v, want two ordered parts", msg)
	}
	if msg.Parts[0].Type != compose.PartTypeText || msg.Parts[0].Text != "what is in this picture?" {
		t.Errorf("first part = %+v", msg.Parts[0])
	}
	if msg.Parts[1].Type != compose.PartTypeImageURL || msg.Parts[1].ImageURL == nil {
		t.Errorf("second part = %+v", msg.Parts[1])
	}
}

func TestRemoveAttachment(t *testing.T) {
	w := newTestWidget(&sendRecorder{}, Options{})

	if err := w.Attach(context.Background(), pngFile(t, "p.png")); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	w.RemoveAttachment()
	if w.Attachment() != nil {
		t.Error("attachment not cleared")
	}
}

// A slow document upload must not clobber an image the user selected while
// the upload was in flight.
func TestStaleUploadDoesNotOverwriteNewerAttachment(t *testing.T) {
	ext := &stubExtractor{
		result:  &extract.Result{ExtractedText: "slow doc", UploadID: "up-6"},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	w := newTestWidget(&sendRecorder{}, Options{Extractor: ext})

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Attach(context.Background(), docFile("slow.pdf"))
	}()
	<-ext.entered // the document ingestion holds its sequence number now

	if err := w.Attach(context.Background(), pngFile(t, "fast.png")); err != nil {
		t.Fatalf("attach image: %v", err)
	}

	close(ext.release)
	if err := <-errCh; !errors.Is(err, ErrSuperseded) {
		t.Errorf("stale ingestion err = %v, want ErrSuperseded", err)
	}
	if _, ok := w.Attachment().(media.ImageAttachment); !ok {
		t.Errorf("attachment = %T, want the newer ImageAttachment", w.Attachment())
	}
}

// A completion that lands after send must not resurrect a cleared slot.
func TestStaleUploadDoesNotResurrectAfterSend(t *testing.T) {
	rec := &sendRecorder{}
	ext := &stubExtractor{
		result:  &extract.Result{ExtractedText: "late", UploadID: "up-7"},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	w := newTestWidget(rec, Options{Extractor: ext})

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Attach(context.Background(), docFile("late.pdf"))
	}()
	<-ext.entered

	w.SetText("send without waiting")
	w.Submit()

	close(ext.release)
	if err := <-errCh; !errors.Is(err, ErrSuperseded) {
		t.Errorf("stale ingestion err = %v, want ErrSuperseded", err)
	}
	if w.Attachment() != nil {
		t.Errorf("attachment = %#v, want empty slot after send", w.Attachment())
	}
}
