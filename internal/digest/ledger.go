package digest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"luach/internal/types"
)

// FileLedger is the digest's append-only send log. One file per covered
// week; each successful send appends a line
//
//	<providerMessageID>:1:<recipient>:<locationID>
//
// The second field is a success flag kept for compatibility with older logs
// that also recorded failures. Replay only trusts lines whose flag is "1";
// anything else, including malformed lines, is skipped silently. Log
// rotation may gzip older files in place, so replay reads both the plain
// file and any .gz sibling.
type FileLedger struct {
	dir string
	log types.Logger
}

// NewFileLedger creates a FileLedger rooted at dir, creating it if needed.
func NewFileLedger(dir string, logger types.Logger) (*FileLedger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalUnexpected,
			Message: "failed to create digest ledger directory",
			Err:     err,
		}
	}
	return &FileLedger{dir: dir, log: logger}, nil
}

func (l *FileLedger) path(item Item) string {
	return filepath.Join(l.dir, "shabbat-"+item.WeekOf.Format("2006-01-02")+".log")
}

// RecordSent appends one successful send. The file is opened, written and
// closed per call; the dispatcher is sequential so there is no contention,
// and a crash loses at most the record of the in-flight send.
func (l *FileLedger) RecordSent(_ context.Context, item Item, providerMsgID string) error {
	f, err := os.OpenFile(l.path(item), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return ledgerError("failed to open digest ledger", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s:1:%s:%s\n", providerMsgID, item.Subscriber.EmailAddress, item.Subscriber.LocationID)
	if _, err := f.WriteString(line); err != nil {
		return ledgerError("failed to append digest ledger", err)
	}
	return f.Sync()
}

// SentSet replays the week's log and returns the set of recipients already
// sent to. A rerun on the same day (after a crash or manual restart) skips
// everyone in the set.
func (l *FileLedger) SentSet(item Item) (map[string]bool, error) {
	sent := make(map[string]bool)

	plain := l.path(item)
	for _, p := range []string{plain, plain + ".gz"} {
		if err := l.replayFile(p, sent); err != nil {
			return nil, err
		}
	}
	return sent, nil
}

func (l *FileLedger) replayFile(path string, sent map[string]bool) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return ledgerError("failed to open digest ledger for replay", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return ledgerError("failed to decompress digest ledger", err)
		}
		defer gz.Close()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), ":", 4)
		if len(parts) != 4 || parts[1] != "1" || parts[2] == "" {
			continue
		}
		sent[parts[2]] = true
	}
	if err := scanner.Err(); err != nil {
		return ledgerError("failed to read digest ledger", err)
	}
	return nil
}

func ledgerError(msg string, err error) error {
	return &types.AppError{Code: types.ErrCodeInternalUnexpected, Message: msg, Err: err}
}
