package translation

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/dialogue-tender/imageutil"
	"github.com/onnwee/dialogue-tender/vision"
)

// frameQueue serves queued frames in order and repeats the last one.
type frameQueue struct {
	mu    sync.Mutex
	queue [][]byte
	last  []byte
	err   error
	calls int
}

func (f *frameQueue) push(frames ...[]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, frames...)
}

func (f *frameQueue) Capture(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.queue) > 0 {
		f.last = f.queue[0]
		f.queue = f.queue[1:]
	}
	if f.last == nil {
		return nil, errors.New("no frame queued")
	}
	return f.last, nil
}

type fakeOCR struct {
	mu      sync.Mutex
	outputs []string
	calls   int
}

func (f *fakeOCR) ExtractText(_ context.Context, _ image.Image) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.outputs) == 0 {
		return "", nil
	}
	out := f.outputs[0]
	if len(f.outputs) > 1 {
		f.outputs = f.outputs[1:]
	}
	return out, nil
}

func (f *fakeOCR) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeTranslator echoes its input as English. block, when set, holds every
// call until it is closed or the context ends.
type fakeTranslator struct {
	mu         sync.Mutex
	textCalls  []string
	imageCalls int
	english    string
	err        error
	panicMsg   string
	block      chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeTranslator) enter(ctx context.Context) error {
	n := f.inFlight.Add(1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	defer f.inFlight.Add(-1)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakeTranslator) TranslateText(ctx context.Context, japanese string) (vision.Result, error) {
	f.mu.Lock()
	f.textCalls = append(f.textCalls, japanese)
	english := f.english
	f.mu.Unlock()
	if err := f.enter(ctx); err != nil {
		return vision.Result{}, err
	}
	if english == "" {
		english = "EN:" + japanese
	}
	return vision.Result{JapaneseText: japanese, EnglishText: english}, nil
}

func (f *fakeTranslator) TranslateImage(ctx context.Context, _ []byte) (vision.Result, error) {
	f.mu.Lock()
	f.imageCalls++
	english := f.english
	f.mu.Unlock()
	if err := f.enter(ctx); err != nil {
		return vision.Result{}, err
	}
	return vision.Result{JapaneseText: "画像", EnglishText: english}, nil
}

func (f *fakeTranslator) TextCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.textCalls)
}

func (f *fakeTranslator) ImageCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imageCalls
}

type fakeDetector struct {
	box   imageutil.Box
	err   error
	calls atomic.Int32
}

func (f *fakeDetector) DetectDialogueBox(_ context.Context, _ []byte) (imageutil.Box, error) {
	f.calls.Add(1)
	if f.err != nil {
		return imageutil.Box{}, f.err
	}
	return f.box, nil
}

type recordingSink struct {
	mu        sync.Mutex
	updates   []string
	clears    int
	updateErr error
}

func (r *recordingSink) Update(_ context.Context, _, english string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates = append(r.updates, english)
	return nil
}

func (r *recordingSink) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	return nil
}

func (r *recordingSink) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates), r.clears
}

// fakeClock advances by step on every read.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), step: time.Millisecond}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const frameW, frameH = 64, 48

var fullBox = imageutil.Box{X: 0, Y: 0, Width: frameW, Height: frameH}

// dialogueFrame is black on the left half and white on the right, standing
// in for a dialogue box with text.
func dialogueFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, frameW, frameH))
	for y := 0; y < frameH; y++ {
		for x := 0; x < frameW; x++ {
			c := color.NRGBA{A: 255}
			if x >= frameW/2 {
				c = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return encodeFrame(t, img)
}

// emptyFrame is a uniform black box.
func emptyFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, frameW, frameH))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return encodeFrame(t, img)
}

func encodeFrame(t *testing.T, img image.Image) []byte {
	t.Helper()
	b, err := imageutil.Encode(img)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return b
}

func hashOf(t *testing.T, frame []byte, box imageutil.Box) imageutil.Hash {
	t.Helper()
	img, err := imageutil.Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	crop, err := imageutil.Crop(img, box)
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	h, err := imageutil.ComputeHash(crop)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h
}

// frameDistance is the hash distance between the dialogue and empty frames,
// used to pick a threshold that separates them.
func frameDistance(t *testing.T) int {
	t.Helper()
	d := imageutil.HammingDistance(hashOf(t, dialogueFrame(t), fullBox), hashOf(t, emptyFrame(t), fullBox))
	if d == 0 {
		t.Fatal("test frames hash identically")
	}
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

func durPtr(d time.Duration) *time.Duration { return &d }
