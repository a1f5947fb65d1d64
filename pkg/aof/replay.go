package aof

import (
	"bufio"
	"os"
	"strconv"

	"github.com/cacheforge/cacheforge/pkg/protocol"
	"github.com/cacheforge/cacheforge/pkg/store"
	"go.uber.org/zap"
)

// Stats summarizes one replay pass: how many log lines applied cleanly,
// how many were skipped as not-applicable (reads, STATS, blank lines), and
// how many failed to parse or apply.
type Stats struct {
	CommandsReplayed uint64
	LinesSkipped     uint64
	Errors           uint64
}

// Replay reconstructs s from the log file at path, line by line. A missing
// file is not an error — it represents a fresh start and yields a zero
// Stats. Malformed lines are counted as errors and skipped; they never
// abort the pass. The caller is responsible for disabling the Writer
// before calling Replay and re-enabling it after, so replayed writes are
// not re-appended to the very log being read.
func Replay(path string, s *store.Store, logger *zap.Logger) (Stats, error) {
	var stats Stats

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return stats, nil
	}
	if err != nil {
		return stats, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			stats.LinesSkipped++
			continue
		}
		applyLine(line, lineNum, s, &stats, logger)
	}

	return stats, scanner.Err()
}

func applyLine(line string, lineNum int, s *store.Store, stats *Stats, logger *zap.Logger) {
	cmd := protocol.Parse(line)

	switch cmd.Verb {
	case protocol.Set:
		if len(cmd.Args) < 2 {
			stats.Errors++
			logger.Warn("aof line skipped: SET requires 2 arguments", zap.Int("line", lineNum))
			return
		}
		s.Set(cmd.Args[0], cmd.Args[1])
		stats.CommandsReplayed++

	case protocol.Del:
		if len(cmd.Args) < 1 {
			stats.Errors++
			logger.Warn("aof line skipped: DEL requires 1 argument", zap.Int("line", lineNum))
			return
		}
		s.Delete(cmd.Args[0])
		stats.CommandsReplayed++

	case protocol.Expire:
		if len(cmd.Args) < 2 {
			stats.Errors++
			logger.Warn("aof line skipped: EXPIRE requires 2 arguments", zap.Int("line", lineNum))
			return
		}
		seconds, err := strconv.ParseInt(cmd.Args[1], 10, 64)
		if err != nil {
			stats.Errors++
			logger.Warn("aof line skipped: invalid EXPIRE seconds", zap.Int("line", lineNum), zap.Error(err))
			return
		}
		if seconds <= 0 {
			stats.Errors++
			logger.Warn("aof line skipped: EXPIRE TTL must be positive", zap.Int("line", lineNum))
			return
		}
		s.Expire(cmd.Args[0], seconds)
		stats.CommandsReplayed++

	default:
		// Read-only or unknown commands never appear in a well-formed log,
		// but a hand-edited or foreign-written file might contain one;
		// skip rather than fail the whole replay.
		stats.LinesSkipped++
	}
}
