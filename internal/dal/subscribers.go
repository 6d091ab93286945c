package dal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrCorruptRecord indicates the subscribers file contains a line that cannot be parsed.
// It is never swallowed: the operation that triggered the load fails loudly.
var ErrCorruptRecord = errors.New("corrupt subscriber record")

// NoMessage is the persisted sentinel for "no previously delivered message".
const NoMessage = -1

const (
	formatHeader = "#v1"
	fieldsPerRec = 6
)

type Subscriber struct {
	ChatID         int64
	MailingEnabled bool
	LastMessageID  int
	Username       string
	FirstName      string
	LastName       string
}

func (s Subscriber) HasLastMessage() bool {
	return s.LastMessageID != NoMessage
}

func (s Subscriber) DisplayName() string {
	name := strings.TrimSpace(s.FirstName + " " + s.LastName)
	if name == "" {
		return strconv.FormatInt(s.ChatID, 10)
	}
	return name
}

// FileStore keeps the subscriber list in a plain-text file, one record per
// line. All access goes through View/Update so that a load-mutate-save
// sequence is a single critical section: concurrent command handlers and the
// mailing cycle serialize on one mutex and cannot clobber each other's writes.
type FileStore struct {
	path string
	mx   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	// the backing file must exist (possibly empty) from startup on
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create subscribers file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close subscribers file: %w", err)
	}

	return &FileStore{path: path}, nil
}

// View runs fn with a read-only snapshot of the subscriber mapping.
func (s *FileStore) View(fn func(subs map[int64]Subscriber) error) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	subs, err := s.load()
	if err != nil {
		return err
	}
	return fn(subs)
}

// Update runs fn with the current subscriber mapping and, if fn returns nil,
// rewrites the whole file atomically with the (possibly mutated) mapping.
// The lock is held for the entire duration of fn.
func (s *FileStore) Update(fn func(subs map[int64]Subscriber) error) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	subs, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(subs); err != nil {
		return err
	}
	return s.save(subs)
}

func (s *FileStore) load() (map[int64]Subscriber, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[int64]Subscriber{}, nil
		}
		return nil, fmt.Errorf("open subscribers file: %w", err)
	}
	defer f.Close()

	res := make(map[int64]Subscriber)
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if line != formatHeader {
				return nil, fmt.Errorf("%w: unsupported format version %q", ErrCorruptRecord, line)
			}
			continue
		}

		sub, err := parseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		res[sub.ChatID] = sub
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read subscribers file: %w", err)
	}

	return res, nil
}

// save rewrites the whole file: serialize to a temp file in the same
// directory, fsync, rename over the original. A concurrent reader never
// observes a half-written file.
func (s *FileStore) save(subs map[int64]Subscriber) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".subscribers-*")
	if err != nil {
		return fmt.Errorf("create temp subscribers file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	w := bufio.NewWriter(tmp)
	if _, err := fmt.Fprintln(w, formatHeader); err != nil {
		return fmt.Errorf("write subscribers header: %w", err)
	}
	for _, sub := range sortedForOutput(subs) {
		if _, err := fmt.Fprintln(w, formatRecord(sub)); err != nil {
			return fmt.Errorf("write subscriber record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush subscribers file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync subscribers file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close subscribers file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace subscribers file: %w", err)
	}
	return nil
}

// sortedForOutput orders active subscribers first, then by chat id. The order
// is deterministic for readability only and carries no meaning on load.
func sortedForOutput(subs map[int64]Subscriber) []Subscriber {
	res := make([]Subscriber, 0, len(subs))
	for _, sub := range subs {
		res = append(res, sub)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].MailingEnabled != res[j].MailingEnabled {
			return res[i].MailingEnabled
		}
		return res[i].ChatID < res[j].ChatID
	})
	return res
}

func formatRecord(sub Subscriber) string {
	enabled := "0"
	if sub.MailingEnabled {
		enabled = "1"
	}
	fields := []string{
		strconv.FormatInt(sub.ChatID, 10),
		enabled,
		strconv.Itoa(sub.LastMessageID),
		sanitizeField(sub.Username),
		sanitizeField(sub.FirstName),
		sanitizeField(sub.LastName),
	}
	return strings.Join(fields, "\t")
}

func parseRecord(line string) (Subscriber, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != fieldsPerRec {
		return Subscriber{}, fmt.Errorf("%w: expected %d fields but got %d", ErrCorruptRecord, fieldsPerRec, len(fields))
	}

	chatID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Subscriber{}, fmt.Errorf("%w: chat id %q: %v", ErrCorruptRecord, fields[0], err)
	}

	var enabled bool
	switch fields[1] {
	case "0":
		enabled = false
	case "1":
		enabled = true
	default:
		return Subscriber{}, fmt.Errorf("%w: mailing flag %q", ErrCorruptRecord, fields[1])
	}

	lastMsgID, err := strconv.Atoi(fields[2])
	if err != nil || lastMsgID < NoMessage {
		return Subscriber{}, fmt.Errorf("%w: last message id %q", ErrCorruptRecord, fields[2])
	}

	return Subscriber{
		ChatID:         chatID,
		MailingEnabled: enabled,
		LastMessageID:  lastMsgID,
		Username:       fields[3],
		FirstName:      fields[4],
		LastName:       fields[5],
	}, nil
}

// sanitizeField keeps profile values from breaking the line/field layout.
func sanitizeField(v string) string {
	v = strings.ReplaceAll(v, "\t", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	return v
}
