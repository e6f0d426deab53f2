package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"multimodal/pkg/logger"
)

// ErrClosed возвращается при записи в закрытый журнал
var ErrClosed = errors.New("audit: logger is closed")

// StdoutLogger пишет записи в writer (по умолчанию stdout) с префиксом [AUDIT]
type StdoutLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdoutLogger создаёт журнал в stdout
func NewStdoutLogger() *StdoutLogger {
	return NewWriterLogger(os.Stdout)
}

// NewWriterLogger создаёт журнал в произвольный writer
func NewWriterLogger(w io.Writer) *StdoutLogger {
	return &StdoutLogger{w: w}
}

func (l *StdoutLogger) Log(_ context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = fmt.Fprintln(l.w, "[AUDIT]", string(data))
	return err
}

func (l *StdoutLogger) Close() error { return nil }

// FileLogger пишет JSONL в файл через буферизованный канал.
// При compress=true поток сжимается zstd; файл читается ReadFile.
type FileLogger struct {
	config *Config
	file   *os.File
	enc    *zstd.Encoder
	writer *bufio.Writer

	mu     sync.Mutex
	buffer chan *Entry
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewFileLogger открывает файл журнала на дозапись
func NewFileLogger(cfg *Config, compress bool) (*FileLogger, error) {
	path := cfg.FilePath
	if path == "" {
		path = "audit.jsonl"
		if compress {
			path += ".zst"
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	l := &FileLogger{
		config: cfg,
		file:   file,
		done:   make(chan struct{}),
	}

	var sink io.Writer = file
	if compress {
		// каждый запуск дописывает отдельный zstd-кадр; декодер читает их подряд
		enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		l.enc = enc
		sink = enc
	}
	l.writer = bufio.NewWriter(sink)

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	l.buffer = make(chan *Entry, bufferSize)

	l.wg.Add(1)
	go l.processLoop()

	return l, nil
}

// Log кладёт запись в буфер; при переполнении пишет синхронно
func (l *FileLogger) Log(_ context.Context, entry *Entry) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case l.buffer <- entry:
		return nil
	default:
		return l.writeEntry(entry)
	}
}

// Close останавливает цикл записи, дописывает буфер и закрывает файл
func (l *FileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		select {
		case entry := <-l.buffer:
			if err := l.writeEntryUnsafe(entry); err != nil {
				logger.Log.Warn("Failed to write audit entry during shutdown", "error", err)
			}
		default:
			return l.closeUnsafe()
		}
	}
}

func (l *FileLogger) closeUnsafe() error {
	var errs []error
	if err := l.writer.Flush(); err != nil {
		errs = append(errs, err)
	}
	if l.enc != nil {
		if err := l.enc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (l *FileLogger) processLoop() {
	defer l.wg.Done()

	flushPeriod := l.config.FlushPeriod
	if flushPeriod <= 0 {
		flushPeriod = 5 * time.Second
	}

	ticker := time.NewTicker(flushPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case entry := <-l.buffer:
			if err := l.writeEntry(entry); err != nil {
				logger.Log.Warn("Failed to write audit entry", "error", err)
			}
		case <-ticker.C:
			l.Flush()
		}
	}
}

func (l *FileLogger) writeEntry(entry *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeEntryUnsafe(entry)
}

func (l *FileLogger) writeEntryUnsafe(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	_, err = l.writer.Write(append(data, '\n'))
	return err
}

// Flush сбрасывает буфер в файл (для zstd - до границы блока)
func (l *FileLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		logger.Log.Warn("Failed to flush audit writer", "error", err)
		return
	}
	if l.enc != nil {
		if err := l.enc.Flush(); err != nil {
			logger.Log.Warn("Failed to flush zstd encoder", "error", err)
		}
	}
}

// ReadFile читает журнал JSONL; файлы *.zst распаковываются
func ReadFile(path string) ([]*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if filepath.Ext(path) == ".zst" {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	var entries []*Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return entries, fmt.Errorf("decode journal line %d: %w", len(entries)+1, err)
		}
		entries = append(entries, &e)
	}
	return entries, scanner.Err()
}

// New создаёт журнал по конфигурации. Выключенный журнал - NoopLogger.
func New(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if !cfg.Enabled {
		return NoopLogger{}, nil
	}

	switch cfg.Backend {
	case "file":
		return NewFileLogger(cfg, false)
	case "zstd":
		return NewFileLogger(cfg, true)
	case "none":
		return NoopLogger{}, nil
	case "stdout", "":
		return NewStdoutLogger(), nil
	default:
		logger.Log.Warn("Unknown audit backend, using stdout", "backend", cfg.Backend)
		return NewStdoutLogger(), nil
	}
}

// NoopLogger ничего не пишет
type NoopLogger struct{}

func (NoopLogger) Log(context.Context, *Entry) error { return nil }

func (NoopLogger) Close() error { return nil }

// MemoryLogger держит записи в памяти (тесты, CLI)
type MemoryLogger struct {
	mu      sync.Mutex
	entries []*Entry
}

func (l *MemoryLogger) Log(_ context.Context, entry *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *MemoryLogger) Close() error { return nil }

// Entries копия записанных записей
func (l *MemoryLogger) Entries() []*Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
