package nodes

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
)

const recordBitDepth = 16

// RecordNode archives the data flowing through it to a WAV file and passes
// the input downstream bit-exact. The file rolls when it exceeds
// max_size_kb; auto_delete removes rolled files after a successful roll and
// total_limit bounds how many rolled files are kept.
type RecordNode struct {
	id         string
	path       string
	maxSizeKB  int
	autoDelete bool
	totalLimit int

	file    *os.File
	encoder *wav.Encoder
	written int64
	rollSeq int
	rolled  []string

	channels   int
	sampleRate uint32
	intBuf     *audio.IntBuffer
	outKind    processing.Kind
	logger     *slog.Logger
}

// NewRecordNode creates a record node writing to the path parameter.
func NewRecordNode(id string, params map[string]any) (*RecordNode, error) {
	path := paramString(params, "path", "")
	if path == "" {
		return nil, errors.Newf("record node requires a path parameter").
			Component(componentNodes).
			Category(errors.CategoryValidation).
			Context("node_id", id).
			Build()
	}
	return &RecordNode{
		id:         id,
		path:       path,
		maxSizeKB:  paramInt(params, "max_size_kb", 1024),
		autoDelete: paramBool(params, "auto_delete", false),
		totalLimit: paramInt(params, "total_limit", 0),
		logger:     nodeLogger("record_node", id),
	}, nil
}

func (n *RecordNode) ID() string       { return n.id }
func (n *RecordNode) NodeType() string { return "record" }

// Accepts reports true for every non-empty variant: recording is a
// passthrough tap.
func (n *RecordNode) Accepts(kind processing.Kind) bool {
	return kind != processing.KindEmpty
}

func (n *RecordNode) OutputKind() processing.Kind {
	if n.outKind == "" {
		return processing.KindDualChannel
	}
	return n.outKind
}

// SetInputKind records the variant this node will receive.
func (n *RecordNode) SetInputKind(kind processing.Kind) {
	n.outKind = kind
}

func (n *RecordNode) Process(input processing.Data) (processing.Data, error) {
	var chans [][]float32
	switch input.Kind {
	case processing.KindAudioFrame, processing.KindDualChannel:
		chans = [][]float32{input.ChannelA, input.ChannelB}
	case processing.KindSingleChannel:
		chans = [][]float32{input.Samples}
	case processing.KindPhotoacousticResult:
		chans = [][]float32{input.Signal}
	default:
		return input, nil
	}

	if err := n.write(chans, input.SampleRate); err != nil {
		// Recording failure must not poison the measurement path: log and
		// keep passing audio through.
		n.logger.Warn("recording failed", "error", err)
	}
	// Pass-through is the identity: downstream sees exactly what came in.
	return input, nil
}

func (n *RecordNode) write(chans [][]float32, sampleRate uint32) error {
	if n.encoder == nil {
		if err := n.open(len(chans), sampleRate); err != nil {
			return err
		}
	}

	frames := len(chans[0])
	data := n.intBuf.Data[:0]
	for i := 0; i < frames; i++ {
		for _, ch := range chans {
			s := float64(0)
			if i < len(ch) {
				s = float64(ch[i])
			}
			v := int(s * 32767)
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			data = append(data, v)
		}
	}
	n.intBuf.Data = data

	if err := n.encoder.Write(n.intBuf); err != nil {
		return errors.New(err).
			Component(componentNodes).
			Category(errors.CategoryFileIO).
			Context("node_id", n.id).
			Context("path", n.currentPath()).
			Build()
	}
	n.written += int64(len(data) * (recordBitDepth / 8))

	if n.maxSizeKB > 0 && n.written >= int64(n.maxSizeKB)*1024 {
		return n.roll()
	}
	return nil
}

func (n *RecordNode) currentPath() string {
	return n.path
}

func (n *RecordNode) open(channels int, sampleRate uint32) error {
	if dir := filepath.Dir(n.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component(componentNodes).
				Category(errors.CategoryFileIO).
				Context("path", dir).
				Build()
		}
	}
	f, err := os.Create(n.path)
	if err != nil {
		return errors.New(err).
			Component(componentNodes).
			Category(errors.CategoryFileIO).
			Context("path", n.path).
			Build()
	}
	n.file = f
	n.channels = channels
	n.sampleRate = sampleRate
	n.encoder = wav.NewEncoder(f, int(sampleRate), recordBitDepth, channels, 1)
	n.written = 0
	n.intBuf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: int(sampleRate)},
		SourceBitDepth: recordBitDepth,
	}
	n.logger.Info("recording started", "path", n.path, "channels", channels, "sample_rate", sampleRate)
	return nil
}

// roll finalizes the current file under a sequence suffix and starts fresh.
func (n *RecordNode) roll() error {
	if err := n.closeFile(); err != nil {
		return err
	}
	n.rollSeq++
	rolledPath := fmt.Sprintf("%s.%d", n.path, n.rollSeq)
	if err := os.Rename(n.path, rolledPath); err != nil {
		return errors.New(err).
			Component(componentNodes).
			Category(errors.CategoryFileIO).
			Context("from", n.path).
			Context("to", rolledPath).
			Build()
	}
	n.logger.Info("recording rolled", "path", rolledPath)

	if n.autoDelete {
		if err := os.Remove(rolledPath); err != nil {
			n.logger.Warn("auto delete failed", "path", rolledPath, "error", err)
		}
	} else {
		n.rolled = append(n.rolled, rolledPath)
		for n.totalLimit > 0 && len(n.rolled) > n.totalLimit {
			oldest := n.rolled[0]
			n.rolled = n.rolled[1:]
			if err := os.Remove(oldest); err != nil {
				n.logger.Warn("removing old recording failed", "path", oldest, "error", err)
			}
		}
	}
	// The next write reopens with the same shape.
	return n.open(n.channels, n.sampleRate)
}

func (n *RecordNode) closeFile() error {
	if n.encoder == nil {
		return nil
	}
	err := n.encoder.Close()
	if cerr := n.file.Close(); err == nil {
		err = cerr
	}
	n.encoder = nil
	n.file = nil
	if err != nil {
		return errors.New(err).
			Component(componentNodes).
			Category(errors.CategoryFileIO).
			Context("path", n.path).
			Build()
	}
	return nil
}

// Reset finalizes the open file; the next frame starts a new one.
func (n *RecordNode) Reset() {
	if err := n.closeFile(); err != nil {
		n.logger.Warn("finalizing recording failed", "error", err)
	}
}

// Finalize closes the WAV file, completing its header. Called on shutdown.
func (n *RecordNode) Finalize() error {
	return n.closeFile()
}

func (n *RecordNode) SupportsHotReload() bool { return true }

func (n *RecordNode) UpdateConfig(params map[string]any) (bool, error) {
	if !hasParam(params, "path", "max_size_kb", "auto_delete", "total_limit") {
		return false, nil
	}
	if p := paramString(params, "path", n.path); p != n.path {
		// Redirecting the output finalizes the current file first.
		if err := n.closeFile(); err != nil {
			return false, err
		}
		n.path = p
		n.rollSeq = 0
		n.rolled = nil
	}
	n.maxSizeKB = paramInt(params, "max_size_kb", n.maxSizeKB)
	n.autoDelete = paramBool(params, "auto_delete", n.autoDelete)
	n.totalLimit = paramInt(params, "total_limit", n.totalLimit)
	return true, nil
}

func (n *RecordNode) CloneNode() processing.Node {
	return &RecordNode{
		id:         n.id,
		path:       n.path,
		maxSizeKB:  n.maxSizeKB,
		autoDelete: n.autoDelete,
		totalLimit: n.totalLimit,
		outKind:    n.outKind,
		logger:     n.logger,
	}
}

func (n *RecordNode) Parameters() map[string]any {
	return map[string]any{
		"path":        n.path,
		"max_size_kb": n.maxSizeKB,
		"auto_delete": n.autoDelete,
		"total_limit": n.totalLimit,
	}
}
