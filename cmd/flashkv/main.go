package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"github.com/flashkv/flashkv/pkg/config"
	"github.com/flashkv/flashkv/pkg/flash"
	"github.com/flashkv/flashkv/pkg/snapshot"
	"github.com/flashkv/flashkv/pkg/store"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem(".gc"),
	readline.PcItem(".init"),
	readline.PcItem(".sync"),
	readline.PcItem(".dump"),
	readline.PcItem(".restore"),
	readline.PcItem("PUT"),
	readline.PcItem("GET"),
	readline.PcItem("DELETE"),
	readline.PcItem("SCAN"),
)

const helpText = `
flashkv - a log-structured key-value store for raw flash images.

Usage:
  flashkv [options] image_path    - Open (or create) a flash image file

Options:
  -create                 - Create a fresh image at the given path
  -sectors n              - Sector count for -create (default 4)
  -sector-size n          - Sector size in bytes for -create (default 4096)
  -alignment n            - Write alignment for -create (default 16)
  -max-keys n             - Key directory capacity for -create (default 256)
  -checksum name          - Checksum algorithm for -create: none, crc32, xxhash

Commands (interactive mode):
  .help                   - Show this help message
  .stats                  - Show store statistics
  .gc                     - Run one garbage collection pass
  .init                   - Force a full re-scan of the partition
  .sync                   - Write the image back to disk
  .dump PATH              - Export live contents to a compressed snapshot
  .restore PATH           - Replay a snapshot into the store
  .exit                   - Sync the image and exit

  PUT key value           - Store a key-value pair
  GET key                 - Retrieve a value by key
  DELETE key              - Delete a key-value pair
  SCAN                    - List all live keys
`

type session struct {
	imagePath string
	cfg       *config.Config
	dev       *flash.MemDevice
	kvs       *store.Store
}

func main() {
	create := flag.Bool("create", false, "create a fresh image")
	sectors := flag.Uint("sectors", 4, "sector count for -create")
	sectorSize := flag.Uint("sector-size", 4096, "sector size for -create")
	alignment := flag.Uint("alignment", 16, "write alignment for -create")
	maxKeys := flag.Int("max-keys", 256, "key directory capacity for -create")
	algo := flag.String("checksum", "crc32", "checksum algorithm for -create")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), helpText)
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	imagePath := flag.Arg(0)

	var (
		sess *session
		err  error
	)
	if *create {
		cfg := config.NewDefaultConfig()
		cfg.SectorCount = uint32(*sectors)
		cfg.SectorSize = uint32(*sectorSize)
		cfg.Alignment = uint32(*alignment)
		cfg.MaxKeys = *maxKeys
		cfg.Checksum = *algo
		sess, err = createImage(imagePath, cfg)
	} else {
		sess, err = openImage(imagePath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	runInteractive(sess)
}

func createImage(imagePath string, cfg *config.Config) (*session, error) {
	if err := cfg.SaveManifest(imagePath); err != nil {
		return nil, err
	}

	dev, err := flash.NewMemDevice(cfg.SectorSize, cfg.SectorCount, cfg.Alignment)
	if err != nil {
		return nil, err
	}
	sess, err := attach(imagePath, cfg, dev)
	if err != nil {
		return nil, err
	}
	if err := sess.sync(); err != nil {
		return nil, err
	}
	fmt.Printf("Created image %s (%d sectors x %d bytes)\n", imagePath, cfg.SectorCount, cfg.SectorSize)
	return sess, nil
}

func openImage(imagePath string) (*session, error) {
	cfg, err := config.LoadManifest(imagePath)
	if err != nil {
		return nil, err
	}

	dev, err := flash.NewMemDevice(cfg.SectorSize, cfg.SectorCount, cfg.Alignment)
	if err != nil {
		return nil, err
	}
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if err := dev.Load(image); err != nil {
		return nil, err
	}
	return attach(imagePath, cfg, dev)
}

func attach(imagePath string, cfg *config.Config, dev *flash.MemDevice) (*session, error) {
	if err := dev.Enable(); err != nil {
		return nil, err
	}
	partition, err := flash.NewPartition(dev, 0, cfg.SectorCount, cfg.Alignment)
	if err != nil {
		return nil, err
	}
	kvs, err := store.New(partition, cfg)
	if err != nil {
		return nil, err
	}
	if err := kvs.Init(); err != nil {
		return nil, err
	}
	return &session{imagePath: imagePath, cfg: cfg, dev: dev, kvs: kvs}, nil
}

// sync writes the device contents back to the image file.
func (s *session) sync() error {
	tmp := s.imagePath + ".tmp"
	if err := os.WriteFile(tmp, s.dev.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmp, s.imagePath); err != nil {
		return fmt.Errorf("failed to replace image: %w", err)
	}
	return nil
}

func runInteractive(sess *session) {
	fmt.Printf("Opened %s: %d/%d keys live\n", sess.imagePath, sess.kvs.Size(), sess.kvs.MaxSize())
	fmt.Println("Enter .help for usage hints.")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "flashkv> ",
		HistoryFile:     os.TempDir() + "/flashkv_history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       ".exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == ".exit" {
			break
		}
		dispatch(sess, line)
	}

	if err := sess.sync(); err != nil {
		fmt.Fprintf(os.Stderr, "Error syncing image: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("Synced %s\n", sess.imagePath)
}

func dispatch(sess *session, line string) {
	parts := strings.SplitN(line, " ", 3)
	cmd := strings.ToUpper(parts[0])

	switch cmd {
	case ".HELP":
		fmt.Print(helpText)

	case ".STATS":
		printStats(sess.kvs.GetStats())

	case ".GC":
		if err := sess.kvs.Maintain(); err != nil {
			fmt.Printf("Error: %s\n", err)
		} else {
			fmt.Println("Collected one sector")
		}

	case ".INIT":
		if err := sess.kvs.Init(); err != nil {
			fmt.Printf("Error: %s\n", err)
		} else {
			fmt.Printf("Re-scan complete: %d keys live\n", sess.kvs.Size())
		}

	case ".SYNC":
		if err := sess.sync(); err != nil {
			fmt.Printf("Error: %s\n", err)
		} else {
			fmt.Printf("Synced %s\n", sess.imagePath)
		}

	case ".DUMP":
		if len(parts) < 2 {
			fmt.Println("Usage: .dump PATH")
			return
		}
		dumpSnapshot(sess, parts[1])

	case ".RESTORE":
		if len(parts) < 2 {
			fmt.Println("Usage: .restore PATH")
			return
		}
		restoreSnapshot(sess, parts[1])

	case "PUT":
		if len(parts) < 3 {
			fmt.Println("Usage: PUT key value")
			return
		}
		if err := sess.kvs.Put([]byte(parts[1]), []byte(parts[2])); err != nil {
			fmt.Printf("Error: %s\n", err)
		} else {
			fmt.Println("OK")
		}

	case "GET":
		if len(parts) < 2 {
			fmt.Println("Usage: GET key")
			return
		}
		value, err := sess.kvs.Get([]byte(parts[1]))
		if err != nil {
			fmt.Printf("Error: %s\n", err)
		} else {
			fmt.Printf("%s\n", value)
		}

	case "DELETE":
		if len(parts) < 2 {
			fmt.Println("Usage: DELETE key")
			return
		}
		if err := sess.kvs.Delete([]byte(parts[1])); err != nil {
			fmt.Printf("Error: %s\n", err)
		} else {
			fmt.Println("OK")
		}

	case "SCAN":
		keys := sess.kvs.Keys()
		sort.Slice(keys, func(i, j int) bool {
			return string(keys[i]) < string(keys[j])
		})
		for _, key := range keys {
			fmt.Printf("%s\n", key)
		}
		fmt.Printf("%d keys\n", len(keys))

	default:
		fmt.Printf("Unknown command: %s (try .help)\n", parts[0])
	}
}

func dumpSnapshot(sess *session, path string) {
	f, err := os.Create(path)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		return
	}
	defer f.Close()

	if err := snapshot.Export(f, sess.kvs); err != nil {
		fmt.Printf("Error: %s\n", err)
		return
	}
	fmt.Printf("Dumped %d keys to %s\n", sess.kvs.Size(), path)
}

func restoreSnapshot(sess *session, path string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		return
	}
	defer f.Close()

	if err := snapshot.Import(f, sess.kvs); err != nil {
		fmt.Printf("Error: %s\n", err)
		return
	}
	fmt.Printf("Restored snapshot, %d keys live\n", sess.kvs.Size())
}

func printStats(m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-32s %v\n", k, m[k])
	}
}
