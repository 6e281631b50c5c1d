package pipeline

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const maxLineLen = 64 * 1024

func (p *Pipeline) runReader(shutdownCtx context.Context, workCh chan<- *Job) error {
	llog := p.log.WithFields(logrus.Fields{
		"method": "runReader",
	})
	llog.Debug("start")
	defer llog.Debug("exit")

	f, err := os.Open(p.cfg.TOML.Source.File)
	if err != nil {
		return errors.Wrap(err, "unable to open source file")
	}
	defer f.Close()

	reader, err := p.openManifest(f)
	if err != nil {
		return errors.Wrap(err, "unable to create reader")
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLen)

	// Where to start reading from
	offset := p.cp.Offset()
	var line int64

	if offset > 0 {
		llog.Infof("resuming after line %d", offset)
	}

	for scanner.Scan() {
		line++

		if line <= offset {
			continue
		}

		job := p.newJob(line, scanner.Text())
		p.stats.linesRead.Add(1)

		select {
		case <-shutdownCtx.Done():
			llog.Debug("received shutdown signal")
			return nil
		case workCh <- job:
		}

		if line%10_000 == 0 {
			llog.Debugf("read '%d' lines", line)
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "error reading manifest after line %d", line)
	}

	llog.Debugf("EOF reached after '%d' lines", line)
	p.readerDone.Store(true)

	return nil
}

func (p *Pipeline) openManifest(f *os.File) (io.Reader, error) {
	switch p.cfg.TOML.Source.FileType {
	case "gzip":
		return gzip.NewReader(f)
	case "plain":
		return f, nil
	default:
		return nil, errors.Errorf("unsupported source file type '%s'", p.cfg.TOML.Source.FileType)
	}
}

// newJob turns a manifest line into a job. Relative paths are resolved
// against source.base_dir.
func (p *Pipeline) newJob(line int64, text string) *Job {
	path := strings.TrimSpace(text)

	if path == "" || strings.HasPrefix(path, "#") {
		return &Job{Line: line, Skip: true}
	}

	if base := p.cfg.TOML.Source.BaseDir; base != "" && !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}

	return &Job{Line: line, Path: path}
}
