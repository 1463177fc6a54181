package cli

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"bpdb/internal/btree"
	"bpdb/internal/pager"
	"bpdb/internal/store"
)

type Config struct {
	Index *store.IndexStore
}

type Command struct {
	Name        string
	Description string
	Callback    func(*Config, []string, io.Writer) error
}

var Registry map[string]Command

func init() {
	Registry = map[string]Command{
		".help": {
			Name:        ".help",
			Description: "Show all available commands",
			Callback:    commandHelp,
		},
		".exit": {
			Name:        ".exit",
			Description: "Flush the index and exit",
			Callback:    commandExit,
		},
		"insert": {
			Name:        "insert",
			Description: "Insert a key - usage: insert <key> [page slot]",
			Callback:    commandInsert,
		},
		"get": {
			Name:        "get",
			Description: "Point lookup - usage: get <key>",
			Callback:    commandGet,
		},
		"delete": {
			Name:        "delete",
			Description: "Delete a key - usage: delete <key>",
			Callback:    commandDelete,
		},
		"scan": {
			Name:        "scan",
			Description: "Ordered scan - usage: scan | scan <start> <end>",
			Callback:    commandScan,
		},
		"count": {
			Name:        "count",
			Description: "Count entries - usage: count | count <start> <end>",
			Callback:    commandCount,
		},
		"load": {
			Name:        "load",
			Description: "Bulk load keys from a file - usage: load <file>",
			Callback:    commandLoad,
		},
		"stats": {
			Name:        "stats",
			Description: "Show tree statistics (root page, height, entries)",
			Callback:    commandStats,
		},
		"backup": {
			Name:        "backup",
			Description: "Write a gzip snapshot - usage: backup <file>",
			Callback:    commandBackup,
		},
	}
}

func parseKey(s string) (uint64, error) {
	key, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad key %q", s)
	}
	return key, nil
}

func commandHelp(config *Config, params []string, w io.Writer) error {
	fmt.Fprintln(w, "bpdb index shell")
	fmt.Fprintln(w)
	for name, cmd := range Registry {
		fmt.Fprintf(w, "%s: %s\n", name, cmd.Description)
	}
	return nil
}

func commandExit(config *Config, params []string, w io.Writer) error {
	fmt.Fprintln(w, "Closing index... goodbye!")
	defer os.Exit(0)
	return config.Index.Close()
}

func commandInsert(config *Config, params []string, w io.Writer) error {
	if len(params) != 1 && len(params) != 3 {
		return errors.New("usage: insert <key> [page slot]")
	}
	key, err := parseKey(params[0])
	if err != nil {
		return err
	}

	rid := store.RIDForKey(key)
	if len(params) == 3 {
		page, err := strconv.ParseInt(params[1], 10, 32)
		if err != nil {
			return errors.Wrapf(err, "bad page id %q", params[1])
		}
		slot, err := strconv.ParseUint(params[2], 10, 32)
		if err != nil {
			return errors.Wrapf(err, "bad slot %q", params[2])
		}
		rid = btree.RID{PageID: pager.PageID(page), Slot: uint32(slot)}
	}

	ok, err := config.Index.Put(key, rid)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(w, "key %d already exists\n", key)
		return nil
	}
	fmt.Fprintf(w, "inserted %d -> (%d, %d)\n", key, rid.PageID, rid.Slot)
	return nil
}

func commandGet(config *Config, params []string, w io.Writer) error {
	if len(params) != 1 {
		return errors.New("usage: get <key>")
	}
	key, err := parseKey(params[0])
	if err != nil {
		return err
	}
	rid, ok, err := config.Index.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(w, "key %d not found\n", key)
		return nil
	}
	fmt.Fprintf(w, "%d -> (%d, %d)\n", key, rid.PageID, rid.Slot)
	return nil
}

func commandDelete(config *Config, params []string, w io.Writer) error {
	if len(params) != 1 {
		return errors.New("usage: delete <key>")
	}
	key, err := parseKey(params[0])
	if err != nil {
		return err
	}
	if err := config.Index.Delete(key); err != nil {
		return err
	}
	fmt.Fprintf(w, "deleted %d\n", key)
	return nil
}

func scanBounds(params []string) (uint64, uint64, error) {
	if len(params) == 0 {
		return 0, math.MaxUint64, nil
	}
	if len(params) != 2 {
		return 0, 0, errors.New("expected no bounds or <start> <end>")
	}
	start, err := parseKey(params[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parseKey(params[1])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func commandScan(config *Config, params []string, w io.Writer) error {
	start, end, err := scanBounds(params)
	if err != nil {
		return err
	}
	entries, err := config.Index.ScanRange(start, end)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%d -> (%d, %d)\n", e.Key, e.Value.PageID, e.Value.Slot)
	}
	fmt.Fprintf(w, "%d entries\n", len(entries))
	return nil
}

func commandCount(config *Config, params []string, w io.Writer) error {
	start, end, err := scanBounds(params)
	if err != nil {
		return err
	}
	entries, err := config.Index.ScanRange(start, end)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Count: %d\n", len(entries))
	return nil
}

func commandLoad(config *Config, params []string, w io.Writer) error {
	if len(params) != 1 {
		return errors.New("usage: load <file>")
	}
	f, err := os.Open(params[0])
	if err != nil {
		return err
	}
	defer f.Close()

	loaded, err := config.Index.LoadKeys(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "loaded %d keys\n", loaded)
	return nil
}

func commandStats(config *Config, params []string, w io.Writer) error {
	stats, err := config.Index.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Root: page %d, Height: %d, Entries: %d\n", stats.Root, stats.Height, stats.Entries)
	return nil
}

func commandBackup(config *Config, params []string, w io.Writer) error {
	if len(params) != 1 {
		return errors.New("usage: backup <file>")
	}
	f, err := os.Create(params[0])
	if err != nil {
		return err
	}
	if err := config.Index.Backup(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(w, "backup written to %s\n", params[0])
	return nil
}
