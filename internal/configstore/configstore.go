package configstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/jszwec/csvutil"

	"ingot/internal/ingest"
	"ingot/internal/schema"
	"ingot/internal/tabular"
)

// TableDelimiter is the fixed delimiter of the Admin configuration tables.
const TableDelimiter = '|'

// FileHeader is the canonical FileConfiguration column set.
var FileHeader = []string{
	"Account",
	"ConfigurationFileID",
	"DefaultCategory",
	"Delimiter",
	"Source",
	"TextQualifier",
}

// ColumnHeader is the canonical ColumnConfiguration column set.
var ColumnHeader = []string{
	"ColumnName_Bronze",
	"ColumnName_File",
	"ColumnName_Silver",
	"ColumnName_Gold",
	"ConfigurationColumnOrder",
	"ConfigurationFileID",
	"Datatype",
	"Transformation_FileToBronze",
}

// FileConfig is one FileConfiguration row: the per-source file contract.
type FileConfig struct {
	Account             string `csv:"Account"`
	ConfigurationFileID int    `csv:"ConfigurationFileID"`
	DefaultCategory     string `csv:"DefaultCategory"`
	Delimiter           string `csv:"Delimiter"`
	Source              string `csv:"Source"`
	TextQualifier       string `csv:"TextQualifier"`
}

// DelimiterRune returns the row's delimiter, falling back when blank.
func (fc FileConfig) DelimiterRune(fallback rune) rune {
	trimmed := strings.TrimSpace(fc.Delimiter)
	if trimmed == "" {
		return fallback
	}
	return []rune(trimmed)[0]
}

// ColumnConfig is one ColumnConfiguration row: how a single file column maps
// into the Bronze (and later) layers.
type ColumnConfig struct {
	ColumnNameBronze     string `csv:"ColumnName_Bronze"`
	ColumnNameFile       string `csv:"ColumnName_File"`
	ColumnNameSilver     string `csv:"ColumnName_Silver"`
	ColumnNameGold       string `csv:"ColumnName_Gold"`
	Order                int    `csv:"ConfigurationColumnOrder"`
	ConfigurationFileID  int    `csv:"ConfigurationFileID"`
	Datatype             string `csv:"Datatype"`
	TransformationBronze string `csv:"Transformation_FileToBronze"`
}

// Store holds both configuration tables, loaded once per run and read-shared
// by every folder afterwards.
type Store struct {
	files   []FileConfig
	columns []ColumnConfig
}

// Load reads both tables. A missing table is bootstrapped with its canonical
// header and zero rows; each bootstrap is reported as a warning wrapping
// ingest.ErrConfigMissing, not a failure. A present table with a wrong header
// is ingest.ErrConfigInvalidHeader, which is fatal for the run.
func Load(filePath, columnPath string) (*Store, []error, error) {
	var warnings []error

	files, warning, err := loadRows[FileConfig](filePath, FileHeader)
	if err != nil {
		return nil, warnings, err
	}
	if warning != nil {
		warnings = append(warnings, warning)
	}

	columns, warning, err := loadRows[ColumnConfig](columnPath, ColumnHeader)
	if err != nil {
		return nil, warnings, err
	}
	if warning != nil {
		warnings = append(warnings, warning)
	}

	return &Store{files: files, columns: columns}, warnings, nil
}

func loadRows[T any](path string, header []string) ([]T, error, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := tabular.WriteHeader(path, TableDelimiter, header); err != nil {
			return nil, nil, ingest.Wrap(ingest.ErrIO, "configstore", "bootstrap", path, err)
		}
		warning := ingest.Wrap(ingest.ErrConfigMissing, "configstore", "bootstrap",
			fmt.Sprintf("configuration file was not found and therefore created: %s", path), nil)
		return nil, warning, nil
	}
	if err != nil {
		return nil, nil, ingest.Wrap(ingest.ErrIO, "configstore", "open", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = TableDelimiter
	reader.LazyQuotes = true

	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		return nil, nil, ingest.Wrap(ingest.ErrConfigInvalidHeader, "configstore", "read header", path, err)
	}

	if res := schema.Validate(dec.Header(), header); !res.OK() {
		return nil, nil, ingest.Wrap(ingest.ErrConfigInvalidHeader, "configstore", path,
			strings.Join(res.Messages(), "; "), nil)
	}

	var rows []T
	for {
		var row T
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, ingest.Wrap(ingest.ErrConfigInvalidHeader, "configstore", "decode row", path, err)
		}
		rows = append(rows, row)
	}
	return rows, nil, nil
}

// Sources returns the distinct Source names present in the file table.
func (s *Store) Sources() []string {
	seen := map[string]struct{}{}
	var sources []string
	for _, fc := range s.files {
		if _, ok := seen[fc.Source]; ok {
			continue
		}
		seen[fc.Source] = struct{}{}
		sources = append(sources, fc.Source)
	}
	sort.Strings(sources)
	return sources
}

// ResolveFileConfig returns the single FileConfiguration row for source.
// Zero rows is ingest.ErrNoConfigForSource; more than one is
// ingest.ErrAmbiguousConfig. First-match guessing is deliberately not an
// option here.
func (s *Store) ResolveFileConfig(source string) (FileConfig, error) {
	var matches []FileConfig
	for _, fc := range s.files {
		if fc.Source == source {
			matches = append(matches, fc)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return FileConfig{}, ingest.Wrap(ingest.ErrNoConfigForSource, "configstore", "resolve",
			fmt.Sprintf("no configuration records were found for source %q", source), nil)
	default:
		return FileConfig{}, ingest.Wrap(ingest.ErrAmbiguousConfig, "configstore", "resolve",
			fmt.Sprintf("%d configuration records were found for source %q, expected exactly one", len(matches), source), nil)
	}
}

// ResolveColumnConfig returns the column rows for a ConfigurationFileID,
// sorted by ConfigurationColumnOrder. Zero rows is ingest.ErrNoColumnConfig.
func (s *Store) ResolveColumnConfig(configurationFileID int) ([]ColumnConfig, error) {
	var matches []ColumnConfig
	for _, cc := range s.columns {
		if cc.ConfigurationFileID == configurationFileID {
			matches = append(matches, cc)
		}
	}
	if len(matches) == 0 {
		return nil, ingest.Wrap(ingest.ErrNoColumnConfig, "configstore", "resolve",
			fmt.Sprintf("no column configuration records were found for ConfigurationFileID %d", configurationFileID), nil)
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Order < matches[j].Order })
	return matches, nil
}

// ExpectedHeader returns the file-column names an inbound file must carry.
// Rows with a blank ColumnName_File describe derived bronze columns and are
// excluded from the expected set.
func ExpectedHeader(columns []ColumnConfig) []string {
	var names []string
	for _, cc := range columns {
		name := strings.TrimSpace(cc.ColumnNameFile)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// BronzeRename returns the file-to-bronze rename map. When two file columns
// map to the same bronze name, the later row in configuration order wins and
// the earlier rename is dropped.
func BronzeRename(columns []ColumnConfig) map[string]string {
	winner := map[string]string{} // bronze name -> file name, last wins
	for _, cc := range columns {
		file := strings.TrimSpace(cc.ColumnNameFile)
		bronze := strings.TrimSpace(cc.ColumnNameBronze)
		if file == "" || bronze == "" {
			continue
		}
		winner[bronze] = file
	}
	rename := make(map[string]string, len(winner))
	for bronze, file := range winner {
		rename[file] = bronze
	}
	return rename
}

// BronzeColumns returns the distinct bronze column names in configuration
// order, de-duplicated last-wins to match BronzeRename.
func BronzeColumns(columns []ColumnConfig) []string {
	var ordered []string
	seen := map[string]int{}
	for _, cc := range columns {
		bronze := strings.TrimSpace(cc.ColumnNameBronze)
		if bronze == "" {
			continue
		}
		if pos, ok := seen[bronze]; ok {
			// Later row wins; keep position of the final occurrence.
			ordered = append(ordered[:pos], ordered[pos+1:]...)
			for name, p := range seen {
				if p > pos {
					seen[name] = p - 1
				}
			}
		}
		seen[bronze] = len(ordered)
		ordered = append(ordered, bronze)
	}
	return ordered
}

// Transformations returns the per-bronze-column expression strings, keyed by
// bronze name, blank expressions omitted. De-duplication by bronze name is
// last-wins, consistent with BronzeRename.
func Transformations(columns []ColumnConfig) map[string]string {
	exprs := map[string]string{}
	for _, cc := range columns {
		bronze := strings.TrimSpace(cc.ColumnNameBronze)
		if bronze == "" {
			continue
		}
		expr := strings.TrimSpace(cc.TransformationBronze)
		if expr == "" {
			delete(exprs, bronze)
			continue
		}
		exprs[bronze] = expr
	}
	return exprs
}
