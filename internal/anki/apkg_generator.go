package anki

import (
	"archive/zip"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// fieldSeparator joins note fields in the notes.flds column
const fieldSeparator = "\x1f"

// APKGGenerator creates Anki package files (.apkg). The collection is an
// SQLite database, so the package is assembled in a real temp directory.
type APKGGenerator struct {
	deckName   string
	deckID     int64
	modelID    int64
	now        time.Time
	cards      []Card
	mediaFiles map[string]int // bare audio file name -> media number
}

// NewAPKGGenerator creates a new APKG generator
func NewAPKGGenerator(deckName string) *APKGGenerator {
	return newAPKGGenerator(deckName, time.Now())
}

func newAPKGGenerator(deckName string, now time.Time) *APKGGenerator {
	// Millisecond IDs keep repeated exports from colliding inside Anki
	id := now.UnixMilli()
	return &APKGGenerator{
		deckName:   deckName,
		deckID:     id,
		modelID:    id + 1,
		now:        now,
		mediaFiles: make(map[string]int),
	}
}

// AddCard adds a card to the generator
func (g *APKGGenerator) AddCard(card Card) {
	g.cards = append(g.cards, card)
}

// GenerateAPKG writes the package to outputPath
func (g *APKGGenerator) GenerateAPKG(outputPath string) error {
	tempDir, err := os.MkdirTemp("", "flashrec_apkg_*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	// Media numbering must exist before the notes reference it
	if err := g.copyMediaFiles(tempDir); err != nil {
		return fmt.Errorf("failed to copy media files: %w", err)
	}
	if err := g.createMediaMapping(tempDir); err != nil {
		return fmt.Errorf("failed to create media mapping: %w", err)
	}
	if err := g.createDatabase(filepath.Join(tempDir, "collection.anki2")); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	if err := g.createZipPackage(tempDir, outputPath); err != nil {
		return fmt.Errorf("failed to create zip package: %w", err)
	}
	return nil
}

func (g *APKGGenerator) createDatabase(dbPath string) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := g.populate(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (g *APKGGenerator) populate(tx *sql.Tx) error {
	for _, stmt := range schema {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	if err := g.insertCollection(tx); err != nil {
		return fmt.Errorf("failed to insert collection: %w", err)
	}
	if err := g.insertNotesAndCards(tx); err != nil {
		return fmt.Errorf("failed to insert notes and cards: %w", err)
	}
	return nil
}

// schema is the subset of the Anki 2.1 collection layout importers read
var schema = []string{
	`CREATE TABLE col (
		id integer PRIMARY KEY, crt integer NOT NULL, mod integer NOT NULL,
		scm integer NOT NULL, ver integer NOT NULL, dty integer NOT NULL,
		usn integer NOT NULL, ls integer NOT NULL, conf text NOT NULL,
		models text NOT NULL, decks text NOT NULL, dconf text NOT NULL,
		tags text NOT NULL
	)`,
	`CREATE TABLE notes (
		id integer PRIMARY KEY, guid text NOT NULL, mid integer NOT NULL,
		mod integer NOT NULL, usn integer NOT NULL, tags text NOT NULL,
		flds text NOT NULL, sfld text NOT NULL, csum integer NOT NULL,
		flags integer NOT NULL, data text NOT NULL
	)`,
	`CREATE TABLE cards (
		id integer PRIMARY KEY, nid integer NOT NULL, did integer NOT NULL,
		ord integer NOT NULL, mod integer NOT NULL, usn integer NOT NULL,
		type integer NOT NULL, queue integer NOT NULL, due integer NOT NULL,
		ivl integer NOT NULL, factor integer NOT NULL, reps integer NOT NULL,
		lapses integer NOT NULL, left integer NOT NULL, odue integer NOT NULL,
		odid integer NOT NULL, flags integer NOT NULL, data text NOT NULL
	)`,
	`CREATE TABLE revlog (
		id integer PRIMARY KEY, cid integer NOT NULL, usn integer NOT NULL,
		ease integer NOT NULL, ivl integer NOT NULL, lastIvl integer NOT NULL,
		factor integer NOT NULL, time integer NOT NULL, type integer NOT NULL
	)`,
	`CREATE TABLE graves (usn integer NOT NULL, oid integer NOT NULL, type integer NOT NULL)`,
	`CREATE INDEX ix_notes_csum ON notes (csum)`,
	`CREATE INDEX ix_notes_usn ON notes (usn)`,
	`CREATE INDEX ix_cards_usn ON cards (usn)`,
	`CREATE INDEX ix_cards_nid ON cards (nid)`,
	`CREATE INDEX ix_cards_sched ON cards (did, queue, due)`,
	`CREATE INDEX ix_revlog_usn ON revlog (usn)`,
	`CREATE INDEX ix_revlog_cid ON revlog (cid)`,
}

func (g *APKGGenerator) insertCollection(tx *sql.Tx) error {
	mod := g.now.Unix()

	decks := map[string]interface{}{
		"1": deckConfig(1, "Default", "", mod),
	}
	decks[strconv.FormatInt(g.deckID, 10)] = deckConfig(g.deckID, g.deckName, "Recorded with flashrec", mod)
	models := map[string]interface{}{
		strconv.FormatInt(g.modelID, 10): g.noteType(mod),
	}
	conf := map[string]interface{}{
		"nextPos":       1,
		"estTimes":      true,
		"activeDecks":   []int64{1},
		"sortType":      "noteFld",
		"sortBackwards": false,
		"addToCur":      true,
		"curDeck":       1,
		"newSpread":     0,
		"dueCounts":     true,
		"collapseTime":  1200,
		"timeLim":       0,
		"schedVer":      1,
		"curModel":      strconv.FormatInt(g.modelID, 10),
		"dayLearnFirst": false,
	}
	dconf := map[string]interface{}{
		"1": map[string]interface{}{
			"id": 1, "name": "Default", "dyn": 0,
			"new": map[string]interface{}{
				"delays": []int{1, 10}, "ints": []int{1, 4, 7}, "initialFactor": 2500,
				"perDay": 20, "order": 1, "bury": true, "separate": true,
			},
			"lapse": map[string]interface{}{
				"delays": []int{10}, "mult": 0, "minInt": 1, "leechFails": 8, "leechAction": 0,
			},
			"rev": map[string]interface{}{
				"perDay": 100, "ease4": 1.3, "fuzz": 0.05, "maxIvl": 36500,
				"ivlFct": 1, "bury": true, "minSpace": 1,
			},
			"timer": 0, "maxTaken": 60, "usn": 0, "mod": mod,
			"autoplay": true, "replayq": true,
		},
	}

	var encoded [4]string
	for i, v := range []interface{}{conf, models, decks, dconf} {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		encoded[i] = string(data)
	}

	_, err := tx.Exec(`INSERT INTO col VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		1, mod, mod*1000, mod*1000,
		11, // schema version
		0, 0, 0,
		encoded[0], encoded[1], encoded[2], encoded[3],
		"{}",
	)
	return err
}

func deckConfig(id int64, name, desc string, mod int64) map[string]interface{} {
	return map[string]interface{}{
		"id":               id,
		"name":             name,
		"mod":              mod,
		"desc":             desc,
		"collapsed":        false,
		"dyn":              0,
		"conf":             1,
		"usn":              0,
		"newToday":         []int{0, 0},
		"revToday":         []int{0, 0},
		"lrnToday":         []int{0, 0},
		"timeToday":        []int{0, 0},
		"browserCollapsed": false,
		"extendNew":        10,
		"extendRev":        50,
	}
}

// noteType is a two-field model with a forward and a reverse template
func (g *APKGGenerator) noteType(mod int64) map[string]interface{} {
	fieldDef := func(name string, ord int) map[string]interface{} {
		return map[string]interface{}{
			"name": name, "ord": ord, "sticky": false, "rtl": false,
			"font": "Arial", "size": 20, "media": []string{},
		}
	}
	template := func(name string, ord int, question, answer string) map[string]interface{} {
		return map[string]interface{}{
			"name": name, "ord": ord, "qfmt": question,
			"afmt": "{{FrontSide}}\n\n<hr id=\"answer\">\n\n" + answer,
			"did": nil, "bqfmt": "", "bafmt": "",
		}
	}

	return map[string]interface{}{
		"id":        g.modelID,
		"name":      "flashrec (Front/Back + Reverse)",
		"type":      0,
		"mod":       mod,
		"usn":       -1,
		"sortf":     0,
		"did":       g.deckID,
		"req":       [][]interface{}{{0, "all", []int{0}}, {1, "all", []int{1}}},
		"vers":      []int{},
		"tags":      []string{},
		"latexPre":  "\\documentclass[12pt]{article}\n\\special{papersize=3in,5in}\n\\usepackage[utf8]{inputenc}\n\\usepackage{amssymb,amsmath}\n\\pagestyle{empty}\n\\setlength{\\parindent}{0in}\n\\begin{document}",
		"latexPost": "\\end{document}",
		"flds":      []map[string]interface{}{fieldDef("Front", 0), fieldDef("Back", 1)},
		"tmpls": []map[string]interface{}{
			template("Forward", 0, `<div class="front">{{Front}}</div>`, `<div class="back">{{Back}}</div>`),
			template("Reverse", 1, `<div class="back">{{Back}}</div>`, `<div class="front">{{Front}}</div>`),
		},
		"css": cardCSS,
	}
}

const cardCSS = `.card {
  font-family: Arial, sans-serif;
  font-size: 24px;
  text-align: center;
  color: #333;
  background-color: white;
}

.front, .back {
  padding: 20px;
  font-weight: bold;
}

.back {
  color: #2c3e50;
}

hr#answer {
  margin: 30px 0;
  border: 0;
  border-top: 1px solid #ecf0f1;
}`

func (g *APKGGenerator) insertNotesAndCards(tx *sql.Tx) error {
	noteStmt, err := tx.Prepare(`INSERT INTO notes VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer noteStmt.Close()

	cardStmt, err := tx.Prepare(`INSERT INTO cards VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer cardStmt.Close()

	base := g.now.UnixMilli()
	mod := g.now.Unix()

	for i, card := range g.cards {
		// Three IDs per note: the note and its two cards
		noteID := base + int64(i*3)

		front := field(card.Front, g.mediaName(card.FrontAudio))
		back := field(card.Back, g.mediaName(card.BackAudio))
		sortField := SanitizeText(card.Front)

		_, err := noteStmt.Exec(
			noteID,
			uuid.NewString(),
			g.modelID,
			mod,
			-1, // usn
			"", // tags
			strings.Join([]string{front, back}, fieldSeparator),
			sortField,
			fieldChecksum(sortField),
			0,  // flags
			"", // data
		)
		if err != nil {
			return fmt.Errorf("failed to insert note: %w", err)
		}

		for ord := 0; ord < 2; ord++ {
			cardID := noteID + 1 + int64(ord)
			_, err := cardStmt.Exec(
				cardID, noteID, g.deckID, ord, mod,
				-1,     // usn
				0, 0,   // type and queue: new
				cardID, // due is the position for new cards
				0, 0, 0, 0, 0, 0, 0, 0,
				"",
			)
			if err != nil {
				return fmt.Errorf("failed to insert card %d of note %d: %w", ord, i+1, err)
			}
		}
	}
	return nil
}

// mediaName returns the name notes use for audioFile, or "" when the file
// was not packaged
func (g *APKGGenerator) mediaName(audioFile string) string {
	if audioFile == "" {
		return ""
	}
	name := filepath.Base(audioFile)
	if _, ok := g.mediaFiles[name]; !ok {
		return ""
	}
	return name
}

// fieldChecksum mirrors Anki's csum: the first 8 hex digits of the SHA1
// of the sort field
func fieldChecksum(s string) int64 {
	sum := sha1.Sum([]byte(s))
	n, _ := strconv.ParseInt(hex.EncodeToString(sum[:])[:8], 16, 64)
	return n
}

// copyMediaFiles stores every existing audio file under its media number
func (g *APKGGenerator) copyMediaFiles(tempDir string) error {
	for _, card := range g.cards {
		for _, src := range []string{card.FrontAudio, card.BackAudio} {
			if src == "" {
				continue
			}
			name := filepath.Base(src)
			if _, seen := g.mediaFiles[name]; seen {
				continue
			}
			if _, err := os.Stat(src); err != nil {
				continue
			}

			num := len(g.mediaFiles)
			if err := copyOSFile(src, filepath.Join(tempDir, strconv.Itoa(num))); err != nil {
				return fmt.Errorf("failed to copy audio file %s: %w", src, err)
			}
			g.mediaFiles[name] = num
		}
	}
	return nil
}

// createMediaMapping writes the "media" JSON that maps numbers to names
func (g *APKGGenerator) createMediaMapping(tempDir string) error {
	mapping := make(map[string]string, len(g.mediaFiles))
	for name, num := range g.mediaFiles {
		mapping[strconv.Itoa(num)] = name
	}

	data, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(tempDir, "media"), data, 0644)
}

// createZipPackage zips the flat contents of tempDir into outputPath
func (g *APKGGenerator) createZipPackage(tempDir, outputPath string) (err error) {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	zipFile, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := zipFile.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(outputPath)
		}
	}()

	w := zip.NewWriter(zipFile)
	for _, name := range names {
		if err := addZipEntry(w, filepath.Join(tempDir, name), name); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

func addZipEntry(w *zip.Writer, path, name string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	entry, err := w.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, file)
	return err
}

func copyOSFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
