package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"clipbot/internal/asset"
	"clipbot/internal/config"
	"clipbot/internal/engine"
	"clipbot/internal/job"
	"clipbot/internal/metrics"
	"clipbot/internal/session"
	"clipbot/internal/transport"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// --- Fakes ---

type sentVideo struct {
	path     string
	fileName string
	caption  string
}

type fakeMessenger struct {
	mu       sync.Mutex
	texts    []string
	menus    []string
	buttons  [][][]transport.Button
	videos   []sentVideo
	statusID int64
	videoErr error
}

func (m *fakeMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *fakeMessenger) SendButtons(ctx context.Context, chatID int64, text string, rows [][]transport.Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.menus = append(m.menus, text)
	m.buttons = append(m.buttons, rows)
	return nil
}

func (m *fakeMessenger) EditStatus(ctx context.Context, chatID, messageID int64, text string) error {
	return nil
}

func (m *fakeMessenger) SendStatus(ctx context.Context, chatID int64, text string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusID++
	return m.statusID, nil
}

func (m *fakeMessenger) SendVideo(ctx context.Context, chatID int64, path, fileName, caption string, progress chan<- transport.Progress) error {
	if progress != nil {
		defer close(progress)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.videoErr != nil {
		return m.videoErr
	}
	m.videos = append(m.videos, sentVideo{path: path, fileName: fileName, caption: caption})
	return nil
}

func (m *fakeMessenger) lastText(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		t.Fatal("Expected at least one text message")
	}
	return m.texts[len(m.texts)-1]
}

func (m *fakeMessenger) sentVideos() []sentVideo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentVideo(nil), m.videos...)
}

type fakeDownloader struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (d *fakeDownloader) Download(ctx context.Context, ref *transport.MediaRef, destDir string, progress chan<- transport.Progress) (string, error) {
	if progress != nil {
		defer close(progress)
	}
	d.mu.Lock()
	d.calls = append(d.calls, ref.FileID)
	d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	path := filepath.Join(destDir, "dl_"+ref.FileID+".mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (d *fakeDownloader) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type fakeEngine struct {
	mu      sync.Mutex
	workDir string
	ops     []string
	failOp  string

	watermarkParams engine.WatermarkParams
	watermarkName   string
	trimStart       float64
	trimEnd         float64
	mergeInputs     [2]string
	replaceName     string
}

func (f *fakeEngine) record(op string) (string, error) {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	n := len(f.ops)
	fail := f.failOp == op
	f.mu.Unlock()

	if fail {
		return "", &engine.TranscodeError{Op: op, Stderr: "boom", Err: errors.New("exit status 1")}
	}
	// Mirror the real engine: outputs live in job-scoped directories.
	dir := filepath.Join(f.workDir, fmt.Sprintf("out_%d", n))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, op+"_out.mp4")
	if err := os.WriteFile(path, []byte("out"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeEngine) Watermark(ctx context.Context, inputPath, origName string, p engine.WatermarkParams) (string, error) {
	f.mu.Lock()
	f.watermarkParams = p
	f.watermarkName = origName
	f.mu.Unlock()
	return f.record("watermark")
}

func (f *fakeEngine) Trim(ctx context.Context, inputPath string, startSec, endSec float64) (string, error) {
	f.mu.Lock()
	f.trimStart, f.trimEnd = startSec, endSec
	f.mu.Unlock()
	return f.record("trim")
}

func (f *fakeEngine) Merge(ctx context.Context, first, second *asset.MediaAsset) (string, error) {
	f.mu.Lock()
	f.mergeInputs = [2]string{first.LocalPath, second.LocalPath}
	f.mu.Unlock()
	return f.record("merge")
}

func (f *fakeEngine) ReplaceAudio(ctx context.Context, videoPath, audioPath, baseName string) (string, error) {
	f.mu.Lock()
	f.replaceName = baseName
	f.mu.Unlock()
	return f.record("replace_audio")
}

func (f *fakeEngine) opCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ops)
}

// --- Helpers ---

func newTestBot(t *testing.T) (*Bot, *fakeMessenger, *fakeDownloader, *fakeEngine) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		WorkDir:          dir,
		JobTimeout:       time.Minute,
		MaxActiveJobs:    2,
		ProgressInterval: time.Millisecond,
	}
	m := &fakeMessenger{}
	d := &fakeDownloader{}
	e := &fakeEngine{workDir: dir}
	return New(cfg, session.NewStore(), e, m, d), m, d, e
}

func cmdEvent(userID int64, name string, replyTo *transport.MediaRef) transport.Event {
	return transport.Event{UserID: userID, ChatID: userID, Kind: transport.EventCommand, Command: name, ReplyTo: replyTo}
}

func textEvent(userID int64, text string) transport.Event {
	return transport.Event{UserID: userID, ChatID: userID, Kind: transport.EventText, Text: text}
}

func mediaEvent(userID int64, media *transport.MediaRef) transport.Event {
	return transport.Event{UserID: userID, ChatID: userID, Kind: transport.EventMedia, Media: media}
}

func buttonEvent(userID int64, payload string) transport.Event {
	return transport.Event{UserID: userID, ChatID: userID, Kind: transport.EventButton, Payload: payload}
}

func videoRef(id string) *transport.MediaRef {
	return &transport.MediaRef{FileID: id, FileName: id + ".mp4", Kind: transport.MediaVideo}
}

func audioRef(id string) *transport.MediaRef {
	return &transport.MediaRef{FileID: id, FileName: id + ".mp3", Kind: transport.MediaAudio}
}

// setWatermarkText walks the add-watermark flow.
func setWatermarkText(b *Bot, userID int64, text string) {
	ctx := context.Background()
	b.handleEvent(ctx, cmdEvent(userID, "add_watermark", nil))
	b.handleEvent(ctx, textEvent(userID, text))
}

// --- Command tests ---

func TestStartCommand(t *testing.T) {
	b, m, _, _ := newTestBot(t)
	b.handleEvent(context.Background(), cmdEvent(1, "start", nil))
	if got := m.lastText(t); got != msgWelcome {
		t.Errorf("Expected welcome text, got %q", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	b, m, _, _ := newTestBot(t)
	b.handleEvent(context.Background(), cmdEvent(1, "frobnicate", nil))
	if got := m.lastText(t); got != msgUnknownCommand {
		t.Errorf("Expected unknown-command text, got %q", got)
	}
}

func TestAddWatermarkFlow(t *testing.T) {
	b, m, _, _ := newTestBot(t)
	ctx := context.Background()

	b.handleEvent(ctx, cmdEvent(1, "add_watermark", nil))
	if got := m.lastText(t); got != msgAskWatermarkText {
		t.Errorf("Expected text prompt, got %q", got)
	}
	if s := b.store.Get(1); s.Pending != session.AwaitingWatermarkText {
		t.Errorf("Expected awaiting_watermark_text, got %s", s.Pending)
	}

	b.handleEvent(ctx, textEvent(1, "© clipbot"))
	if got := m.lastText(t); got != msgWatermarkSaved {
		t.Errorf("Expected confirmation, got %q", got)
	}
	s := b.store.Get(1)
	if s.Watermark.Text != "© clipbot" {
		t.Errorf("Expected watermark text stored, got %q", s.Watermark.Text)
	}
	if s.Pending != session.None {
		t.Errorf("Expected state cleared, got %s", s.Pending)
	}
}

// --- Watermark job tests ---

func TestWatermarkWithoutTextRejected(t *testing.T) {
	b, m, d, e := newTestBot(t)

	b.handleEvent(context.Background(), cmdEvent(1, "watermark", videoRef("v1")))

	if got := m.lastText(t); got != msgNoWatermarkText {
		t.Errorf("Expected rejection, got %q", got)
	}
	if d.callCount() != 0 {
		t.Error("Rejection must not trigger a download")
	}
	if e.opCount() != 0 {
		t.Error("Rejection must not invoke the engine")
	}
}

func TestWatermarkRequiresRepliedVideo(t *testing.T) {
	b, m, d, _ := newTestBot(t)
	setWatermarkText(b, 1, "text")

	b.handleEvent(context.Background(), cmdEvent(1, "watermark", nil))

	if got := m.lastText(t); got != msgReplyToVideo {
		t.Errorf("Expected reply-to-video rejection, got %q", got)
	}
	if d.callCount() != 0 {
		t.Error("Rejection must not trigger a download")
	}
}

func TestWatermarkJob(t *testing.T) {
	b, m, d, e := newTestBot(t)
	setWatermarkText(b, 1, "brand")
	b.handleEvent(context.Background(), buttonEvent(1, "opacity_0.5"))
	b.handleEvent(context.Background(), buttonEvent(1, "position_bottom-left"))
	b.handleEvent(context.Background(), buttonEvent(1, "width_200"))

	b.handleEvent(context.Background(), cmdEvent(1, "watermark", videoRef("v1")))

	if d.callCount() != 1 {
		t.Fatalf("Expected 1 download, got %d", d.callCount())
	}
	want := engine.WatermarkParams{Text: "brand", Opacity: 0.5, Anchor: "bottom-left", FontSize: 200}
	if e.watermarkParams != want {
		t.Errorf("Expected params %+v, got %+v", want, e.watermarkParams)
	}
	if e.watermarkName != "v1.mp4" {
		t.Errorf("Expected original name passed through, got %q", e.watermarkName)
	}

	videos := m.sentVideos()
	if len(videos) != 1 {
		t.Fatalf("Expected 1 delivered video, got %d", len(videos))
	}
	if videos[0].caption != captionWatermark {
		t.Errorf("Unexpected caption %q", videos[0].caption)
	}

	// Input and output must be released after delivery.
	assertWorkDirEmpty(t, b.cfg.WorkDir)
}

// --- Trim flow tests ---

func TestVideoInIdleStateOffersActions(t *testing.T) {
	b, m, _, _ := newTestBot(t)

	b.handleEvent(context.Background(), mediaEvent(1, videoRef("v1")))

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.menus) != 1 || m.menus[0] != msgChooseAction {
		t.Fatalf("Expected action menu, got %v", m.menus)
	}
	payloads := []string{}
	for _, row := range m.buttons[0] {
		for _, btn := range row {
			payloads = append(payloads, btn.Payload)
		}
	}
	if len(payloads) != 2 || payloads[0] != "choose_trim" || payloads[1] != "choose_merge" {
		t.Errorf("Unexpected payloads %v", payloads)
	}
	if s := b.store.Get(1); s.PendingMedia == nil || s.PendingMedia.FileID != "v1" {
		t.Error("Expected pending media stored")
	}
}

func TestTrimFlow(t *testing.T) {
	b, m, d, e := newTestBot(t)
	ctx := context.Background()

	b.handleEvent(ctx, mediaEvent(1, videoRef("v1")))
	b.handleEvent(ctx, buttonEvent(1, "choose_trim"))
	if got := m.lastText(t); got != msgAskTrimRange {
		t.Fatalf("Expected range prompt, got %q", got)
	}

	b.handleEvent(ctx, textEvent(1, "5 20.5"))

	if d.callCount() != 1 {
		t.Fatalf("Expected 1 download, got %d", d.callCount())
	}
	if e.trimStart != 5 || e.trimEnd != 20.5 {
		t.Errorf("Expected range 5-20.5, got %v-%v", e.trimStart, e.trimEnd)
	}
	if len(m.sentVideos()) != 1 {
		t.Fatal("Expected delivered video")
	}
	if s := b.store.Get(1); s.Pending != session.None {
		t.Errorf("Expected state cleared, got %s", s.Pending)
	}
	assertWorkDirEmpty(t, b.cfg.WorkDir)
}

func TestTrimRangeValidation(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"NotNumbers", "abc def"},
		{"OneField", "5"},
		{"ThreeFields", "1 2 3"},
		{"EndBeforeStart", "10 5"},
		{"EqualBounds", "5 5"},
		{"NegativeStart", "-1 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, m, d, e := newTestBot(t)
			ctx := context.Background()
			b.handleEvent(ctx, mediaEvent(1, videoRef("v1")))
			b.handleEvent(ctx, buttonEvent(1, "choose_trim"))

			b.handleEvent(ctx, textEvent(1, tt.text))

			if got := m.lastText(t); got != msgBadTrimRange {
				t.Errorf("Expected validation message, got %q", got)
			}
			if d.callCount() != 0 || e.opCount() != 0 {
				t.Error("Validation failure must not download or transcode")
			}
			if s := b.store.Get(1); s.Pending != session.AwaitingTrimRange {
				t.Errorf("Expected state unchanged, got %s", s.Pending)
			}
		})
	}
}

func TestValidationRejectionIncrementsRejectionMetric(t *testing.T) {
	b, m, _, _ := newTestBot(t)
	ctx := context.Background()
	b.handleEvent(ctx, mediaEvent(1, videoRef("v1")))
	b.handleEvent(ctx, buttonEvent(1, "choose_trim"))

	before := testutil.ToFloat64(metrics.StateRejectionsTotal)
	b.handleEvent(ctx, textEvent(1, "10 5"))

	if got := m.lastText(t); got != msgBadTrimRange {
		t.Fatalf("Expected validation message, got %q", got)
	}
	if got := testutil.ToFloat64(metrics.StateRejectionsTotal); got != before+1 {
		t.Errorf("Expected rejection counter to advance by 1, got %v then %v", before, got)
	}
}

// --- Merge flow tests ---

func TestMergeFlow(t *testing.T) {
	b, m, d, e := newTestBot(t)
	ctx := context.Background()

	b.handleEvent(ctx, mediaEvent(1, videoRef("first")))
	b.handleEvent(ctx, buttonEvent(1, "choose_merge"))

	if got := m.lastText(t); got != msgAskSecondVideo {
		t.Fatalf("Expected second-video prompt, got %q", got)
	}
	if d.callCount() != 1 {
		t.Fatalf("Expected first video downloaded eagerly, got %d downloads", d.callCount())
	}
	if s := b.store.Get(1); s.Pending != session.AwaitingSecondMergeInput || s.FirstVideo == nil {
		t.Fatal("Expected merge state with first asset held")
	}

	b.handleEvent(ctx, mediaEvent(1, videoRef("second")))

	if d.callCount() != 2 {
		t.Fatalf("Expected 2 downloads, got %d", d.callCount())
	}
	if e.mergeInputs[0] == "" || e.mergeInputs[0] == e.mergeInputs[1] {
		t.Errorf("Unexpected merge inputs %v", e.mergeInputs)
	}
	videos := m.sentVideos()
	if len(videos) != 1 || videos[0].caption != captionMerge {
		t.Fatalf("Expected merged video delivered, got %v", videos)
	}
	if s := b.store.Get(1); s.Pending != session.None || s.FirstVideo != nil {
		t.Error("Expected flow state cleared")
	}
	assertWorkDirEmpty(t, b.cfg.WorkDir)
}

func TestMergeSecondInputMustBeVideo(t *testing.T) {
	b, m, _, e := newTestBot(t)
	ctx := context.Background()
	b.handleEvent(ctx, mediaEvent(1, videoRef("first")))
	b.handleEvent(ctx, buttonEvent(1, "choose_merge"))

	b.handleEvent(ctx, mediaEvent(1, audioRef("a1")))

	if got := m.lastText(t); got != msgSendVideoToMerge {
		t.Errorf("Expected video-required message, got %q", got)
	}
	if e.opCount() != 0 {
		t.Error("Expected no merge attempt")
	}
	if s := b.store.Get(1); s.Pending != session.AwaitingSecondMergeInput {
		t.Errorf("Expected state unchanged, got %s", s.Pending)
	}
}

func TestMergeFlowsAreIsolatedPerUser(t *testing.T) {
	b, m, _, _ := newTestBot(t)
	ctx := context.Background()

	// User 1 is mid-merge.
	b.handleEvent(ctx, mediaEvent(1, videoRef("a-first")))
	b.handleEvent(ctx, buttonEvent(1, "choose_merge"))
	firstBefore := b.store.Get(1).FirstVideo

	// User 2 starts their own flow.
	b.handleEvent(ctx, mediaEvent(2, videoRef("b-video")))

	m.mu.Lock()
	menus := len(m.menus)
	m.mu.Unlock()
	if menus != 1 {
		t.Errorf("Expected user 2 to get the action menu, saw %d menus", menus)
	}

	s1 := b.store.Get(1)
	if s1.Pending != session.AwaitingSecondMergeInput {
		t.Errorf("User 1 state changed to %s", s1.Pending)
	}
	if s1.FirstVideo != firstBefore {
		t.Error("User 1 first asset was touched by user 2's event")
	}
	if s2 := b.store.Get(2); s2.Pending != session.None || s2.PendingMedia.FileID != "b-video" {
		t.Error("User 2 session not tracked independently")
	}
}

// --- Audio replace flow tests ---

func TestAudioReplaceFlow(t *testing.T) {
	b, m, d, e := newTestBot(t)
	ctx := context.Background()

	b.handleEvent(ctx, cmdEvent(1, "merge_video_audio", videoRef("v1")))
	if got := m.lastText(t); got != msgAskAudioFile {
		t.Fatalf("Expected audio prompt, got %q", got)
	}

	b.handleEvent(ctx, mediaEvent(1, audioRef("a1")))
	if got := m.lastText(t); got != msgAskOutputName {
		t.Fatalf("Expected name prompt, got %q", got)
	}

	b.handleEvent(ctx, textEvent(1, "my_clip"))

	if d.callCount() != 2 {
		t.Fatalf("Expected video and audio downloaded, got %d downloads", d.callCount())
	}
	if e.replaceName != "my_clip" {
		t.Errorf("Expected output name passed through, got %q", e.replaceName)
	}
	videos := m.sentVideos()
	if len(videos) != 1 || videos[0].caption != captionAudioReplace {
		t.Fatalf("Expected delivered video, got %v", videos)
	}
	if s := b.store.Get(1); s.Pending != session.None || s.AudioRef != nil || s.PendingMedia != nil {
		t.Error("Expected flow state cleared")
	}
	assertWorkDirEmpty(t, b.cfg.WorkDir)
}

func TestAudioReplaceRequiresRepliedVideo(t *testing.T) {
	b, m, _, _ := newTestBot(t)

	b.handleEvent(context.Background(), cmdEvent(1, "merge_video_audio", nil))

	if got := m.lastText(t); got != msgReplyForAudio {
		t.Errorf("Expected reply-required message, got %q", got)
	}
	if s := b.store.Get(1); s.Pending != session.None {
		t.Errorf("Expected state unchanged, got %s", s.Pending)
	}
}

func TestAudioReplaceRejectsVideoAsAudio(t *testing.T) {
	b, m, _, _ := newTestBot(t)
	ctx := context.Background()
	b.handleEvent(ctx, cmdEvent(1, "merge_video_audio", videoRef("v1")))

	b.handleEvent(ctx, mediaEvent(1, videoRef("v2")))

	if got := m.lastText(t); got != msgSendAudioFile {
		t.Errorf("Expected audio-required message, got %q", got)
	}
	if s := b.store.Get(1); s.Pending != session.AwaitingAudioFile {
		t.Errorf("Expected state unchanged, got %s", s.Pending)
	}
}

func TestAudioReplaceRejectsBlankName(t *testing.T) {
	b, m, _, e := newTestBot(t)
	ctx := context.Background()
	b.handleEvent(ctx, cmdEvent(1, "merge_video_audio", videoRef("v1")))
	b.handleEvent(ctx, mediaEvent(1, audioRef("a1")))

	b.handleEvent(ctx, textEvent(1, "   "))

	if got := m.lastText(t); got != msgEmptyOutputName {
		t.Errorf("Expected blank-name rejection, got %q", got)
	}
	if e.opCount() != 0 {
		t.Error("Expected no job run")
	}
	if s := b.store.Get(1); s.Pending != session.AwaitingOutputName {
		t.Errorf("Expected state unchanged, got %s", s.Pending)
	}
}

// --- Watermark settings buttons ---

func TestWatermarkSettingButtons(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantMsg string
		check   func(t *testing.T, s session.Session)
	}{
		{
			"Opacity", "opacity_0.25", "Transparency set to 25%",
			func(t *testing.T, s session.Session) {
				if s.Watermark.Opacity != 0.25 {
					t.Errorf("Expected opacity 0.25, got %v", s.Watermark.Opacity)
				}
			},
		},
		{
			"Position", "position_bottom-right", "Position set to Bottom Right",
			func(t *testing.T, s session.Session) {
				if s.Watermark.Anchor != "bottom-right" {
					t.Errorf("Expected bottom-right, got %q", s.Watermark.Anchor)
				}
			},
		},
		{
			"Width", "width_300", "Watermark width set to 300px",
			func(t *testing.T, s session.Session) {
				if s.Watermark.Width != 300 {
					t.Errorf("Expected width 300, got %d", s.Watermark.Width)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, m, _, _ := newTestBot(t)
			b.handleEvent(context.Background(), buttonEvent(1, tt.payload))

			if got := m.lastText(t); got != tt.wantMsg {
				t.Errorf("Expected %q, got %q", tt.wantMsg, got)
			}
			tt.check(t, b.store.Get(1))
		})
	}
}

func TestSettingButtonsDoNotChangePendingState(t *testing.T) {
	b, _, _, _ := newTestBot(t)
	ctx := context.Background()
	b.handleEvent(ctx, cmdEvent(1, "add_watermark", nil))

	b.handleEvent(ctx, buttonEvent(1, "opacity_0.5"))

	if s := b.store.Get(1); s.Pending != session.AwaitingWatermarkText {
		t.Errorf("Expected pending action untouched, got %s", s.Pending)
	}
}

func TestEditWatermarkMenu(t *testing.T) {
	b, m, _, _ := newTestBot(t)
	b.handleEvent(context.Background(), cmdEvent(1, "edit_watermark", nil))

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.menus) != 1 || m.menus[0] != msgAdjustWatermark {
		t.Fatalf("Expected settings menu, got %v", m.menus)
	}
	if len(m.buttons[0]) != 3 {
		t.Errorf("Expected 3 setting rows, got %d", len(m.buttons[0]))
	}
}

// --- State rejections ---

func TestMediaDuringTextStepRejected(t *testing.T) {
	b, m, _, _ := newTestBot(t)
	ctx := context.Background()
	b.handleEvent(ctx, cmdEvent(1, "add_watermark", nil))

	b.handleEvent(ctx, mediaEvent(1, videoRef("v1")))

	if got := m.lastText(t); got != msgFinishStep {
		t.Errorf("Expected step rejection, got %q", got)
	}
	if s := b.store.Get(1); s.Pending != session.AwaitingWatermarkText {
		t.Errorf("Expected state unchanged, got %s", s.Pending)
	}
}

func TestTextInIdleStateRejected(t *testing.T) {
	b, m, _, _ := newTestBot(t)

	b.handleEvent(context.Background(), textEvent(1, "hello?"))

	if got := m.lastText(t); got != msgNotExpecting {
		t.Errorf("Expected not-expecting message, got %q", got)
	}
}

func TestStaleChooseButtonRejected(t *testing.T) {
	b, m, _, _ := newTestBot(t)

	b.handleEvent(context.Background(), buttonEvent(1, "choose_trim"))

	if got := m.lastText(t); got != msgSendVideoTip {
		t.Errorf("Expected send-video message, got %q", got)
	}
}

// --- Failure and cleanup ---

func TestTranscodeFailureCleansUpAndReports(t *testing.T) {
	b, m, _, e := newTestBot(t)
	e.failOp = "trim"
	ctx := context.Background()
	b.handleEvent(ctx, mediaEvent(1, videoRef("v1")))
	b.handleEvent(ctx, buttonEvent(1, "choose_trim"))

	b.handleEvent(ctx, textEvent(1, "0 10"))

	if got := m.lastText(t); got != userMessage(&engine.TranscodeError{}) {
		t.Errorf("Expected transcode failure message, got %q", got)
	}
	if len(m.sentVideos()) != 0 {
		t.Error("Expected no delivery on failure")
	}
	assertWorkDirEmpty(t, b.cfg.WorkDir)
}

func TestDownloadFailureReports(t *testing.T) {
	b, m, d, e := newTestBot(t)
	d.err = &transport.TransferError{Direction: "download", Ref: "v1", Err: errors.New("timeout")}
	setWatermarkText(b, 1, "text")

	b.handleEvent(context.Background(), cmdEvent(1, "watermark", videoRef("v1")))

	if got := m.lastText(t); got != "The file transfer failed. Please try again." {
		t.Errorf("Expected transfer failure message, got %q", got)
	}
	if e.opCount() != 0 {
		t.Error("Expected no engine call after failed download")
	}
}

func TestDeliveryFailureStillCleansUp(t *testing.T) {
	b, m, _, _ := newTestBot(t)
	m.videoErr = &transport.TransferError{Direction: "upload", Ref: "out", Err: errors.New("413")}
	setWatermarkText(b, 1, "text")

	b.handleEvent(context.Background(), cmdEvent(1, "watermark", videoRef("v1")))

	if got := m.lastText(t); got != "I couldn't send the result back. Please try again." {
		t.Errorf("Expected upload failure message, got %q", got)
	}
	assertWorkDirEmpty(t, b.cfg.WorkDir)
}

// --- Dispatch ---

func TestRunProcessesEventsConcurrently(t *testing.T) {
	b, m, _, _ := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan transport.Event)

	done := make(chan struct{})
	go func() {
		b.Run(ctx, events)
		close(done)
	}()

	const users = 10
	for i := int64(1); i <= users; i++ {
		events <- cmdEvent(i, "start", nil)
	}

	deadline := time.After(5 * time.Second)
	for {
		m.mu.Lock()
		n := len(m.texts)
		m.mu.Unlock()
		if n == users {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("Expected %d replies, got %d", users, n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not shut down")
	}
}

func TestRunningJobSurvivesDispatchCancel(t *testing.T) {
	b, m, _, _ := newTestBot(t)
	parent, cancel := context.WithCancel(context.Background())

	j := job.New(job.Trim, 1)
	out := filepath.Join(b.cfg.WorkDir, "trim_out.mp4")
	err := b.runJob(parent, 1, j, "done", func(jobCtx context.Context) (string, error) {
		// Canceling the dispatch context must not kill the running job.
		cancel()
		if ctxErr := jobCtx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if writeErr := os.WriteFile(out, []byte("out"), 0o644); writeErr != nil {
			return "", writeErr
		}
		return out, nil
	})
	if err != nil {
		t.Fatalf("runJob() error: %v", err)
	}
	if len(m.sentVideos()) != 1 {
		t.Fatal("Expected delivery after parent cancel")
	}
	assertWorkDirEmpty(t, b.cfg.WorkDir)
}

func TestDispatchFullQueueRepliesBusy(t *testing.T) {
	b, m, _, _ := newTestBot(t)

	// A stuck actor: its queue is pre-filled and nothing drains it.
	ch := make(chan transport.Event, actorQueueSize)
	for i := 0; i < actorQueueSize; i++ {
		ch <- transport.Event{}
	}
	b.mu.Lock()
	b.actors[1] = ch
	b.mu.Unlock()

	b.dispatch(context.Background(), cmdEvent(1, "start", nil))

	deadline := time.After(5 * time.Second)
	for {
		m.mu.Lock()
		var last string
		if len(m.texts) > 0 {
			last = m.texts[len(m.texts)-1]
		}
		m.mu.Unlock()
		if last != "" {
			if last != msgBusy {
				t.Fatalf("Expected busy reply, got %q", last)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("Expected a busy reply")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// --- Misc ---

func TestParseTrimRangeAccepts(t *testing.T) {
	start, end, err := parseTrimRange("  1.5   42 ")
	if err != nil {
		t.Fatalf("parseTrimRange() error: %v", err)
	}
	if start != 1.5 || end != 42 {
		t.Errorf("Expected 1.5-42, got %v-%v", start, end)
	}
}

func TestTitleCase(t *testing.T) {
	if got := titleCase("bottom-left"); got != "Bottom Left" {
		t.Errorf("Expected Bottom Left, got %q", got)
	}
	if got := titleCase("top-right"); got != "Top Right" {
		t.Errorf("Expected Top Right, got %q", got)
	}
}

func assertWorkDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected empty work dir, found %v", names)
	}
}
