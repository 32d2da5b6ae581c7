package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	rowFile    = "row.json"
	stdoutFile = "stdout.txt"
	stderrFile = "stderr.txt"
	ReportFile = "report.csv"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// CreateRunDir makes a fresh run directory under baseDir/runs and points
// baseDir/latest at it. Names sort by start time; the suffix keeps runs
// started in the same second apart.
func CreateRunDir(baseDir string) (string, error) {
	runsDir, err := filepath.Abs(filepath.Join(baseDir, "runs"))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	var runDir string
	for attempt := 0; ; attempt++ {
		runDir = filepath.Join(runsDir, stamp+"-"+uuid.NewString()[:8])
		err := os.Mkdir(runDir, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) || attempt == 3 {
			return "", fmt.Errorf("creating run dir: %w", err)
		}
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// ScenarioDir is where one scenario's row and raw output are kept.
func ScenarioDir(runDir string, seq int, engine, modelType string) string {
	name := fmt.Sprintf("%04d-%s", seq, unsafeName.ReplaceAllString(engine, "_"))
	if modelType != "" {
		name += "-" + unsafeName.ReplaceAllString(modelType, "_")
	}
	return filepath.Join(runDir, "scenarios", name)
}

func WriteRow(dir string, row *Row) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating scenario dir: %w", err)
	}
	data, err := json.MarshalIndent(row, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling row: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, rowFile), data, 0o644)
}

// WriteRaw keeps the full captured output next to a failed row.
func WriteRaw(dir, stdout, stderr string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating scenario dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stdoutFile), []byte(stdout), 0o644); err != nil {
		return fmt.Errorf("writing stdout: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stderrFile), []byte(stderr), 0o644); err != nil {
		return fmt.Errorf("writing stderr: %w", err)
	}
	return nil
}

func ReadRow(path string) (*Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading row: %w", err)
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("parsing row %s: %w", path, err)
	}
	return &row, nil
}

// LoadRows reads every stored row under runDir, ordered by sequence number.
func LoadRows(runDir string) ([]*Row, error) {
	var rows []*Row
	err := filepath.Walk(runDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Name() != rowFile {
			return nil
		}
		row, err := ReadRow(path)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })
	return rows, nil
}
