// Package chromecache reads the Chromium disk-cache "block file" layout the
// game's embedded web view writes: an index file holding a hash table of
// cache addresses, data_N block files holding entry and rankings records,
// and f_* external files for large payloads. Only the parts the companion
// needs are decoded: entry keys, creation times, and last-used times.
package chromecache

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	indexMagic uint32 = 0xC103CAC3
	blockMagic uint32 = 0xC104CAC3

	indexHeaderSize = 368
	blockHeaderSize = 8192

	entryStoreSize   = 256
	entryKeyOffset   = 96
	rankingsNodeSize = 36

	// Collision chains and key blocks in a corrupt cache can reference each
	// other; bound traversal instead of trusting the file.
	maxChainLength = 1000
)

// windowsEpochDeltaMicros is the offset between the 1601 epoch the cache
// stores and the unix epoch, in microseconds.
const windowsEpochDeltaMicros = 11644473600000000

type fileType uint32

const (
	typeExternal fileType = iota
	typeRankings
	typeBlock256
	typeBlock1K
	typeBlock4K
)

// addr is a Chromium cache address: a packed reference to either an
// external file or a run of blocks inside a data_N file.
type addr uint32

func (a addr) initialized() bool { return a&0x80000000 != 0 }
func (a addr) fileType() fileType {
	return fileType((a >> 28) & 0x7)
}
func (a addr) fileNumber() int { return int((a >> 16) & 0xFF) }
func (a addr) startBlock() int { return int(a & 0xFFFF) }
func (a addr) numBlocks() int  { return int((a>>24)&0x3) + 1 }

func (a addr) blockSize() int {
	switch a.fileType() {
	case typeRankings:
		return rankingsNodeSize
	case typeBlock256:
		return 256
	case typeBlock1K:
		return 1024
	case typeBlock4K:
		return 4096
	default:
		return 0
	}
}

// Entry is one cache record: a URL-like key plus the timestamps the scan
// filters on. LastUsed is zero when the rankings node was unreadable.
type Entry struct {
	Key          string
	CreationTime time.Time
	LastUsed     time.Time
}

// Cache is an in-memory snapshot of a block-file cache directory. The
// directory is re-read wholesale on Open; the game rotates files under us,
// so no handles are kept open.
type Cache struct {
	table  []addr
	blocks map[int][]byte
}

// Open snapshots the cache directory. Missing data files referenced later
// surface as skipped entries, not as an open failure.
func Open(dir string) (*Cache, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "index"))
	if err != nil {
		return nil, fmt.Errorf("read cache index: %w", err)
	}
	if len(raw) < indexHeaderSize {
		return nil, fmt.Errorf("cache index truncated: %d bytes", len(raw))
	}
	if magic := binary.LittleEndian.Uint32(raw[0:4]); magic != indexMagic {
		return nil, fmt.Errorf("bad cache index magic: %#x", magic)
	}

	tableLen := int(binary.LittleEndian.Uint32(raw[28:32]))
	maxTable := (len(raw) - indexHeaderSize) / 4
	if tableLen <= 0 || tableLen > maxTable {
		tableLen = maxTable
	}

	table := make([]addr, 0, tableLen)
	for i := 0; i < tableLen; i++ {
		off := indexHeaderSize + i*4
		table = append(table, addr(binary.LittleEndian.Uint32(raw[off:off+4])))
	}

	c := &Cache{table: table, blocks: make(map[int][]byte)}
	for i := 0; ; i++ {
		data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("data_%d", i)))
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("read cache block file data_0: %w", err)
			}
			break
		}
		if len(data) >= 8 && binary.LittleEndian.Uint32(data[0:4]) != blockMagic {
			continue
		}
		c.blocks[i] = data
	}
	return c, nil
}

// Entries walks the index hash table and collision chains, decoding every
// readable entry. Individual undecodable records are skipped.
func (c *Cache) Entries() []Entry {
	var out []Entry
	for _, head := range c.table {
		cur := head
		for hops := 0; cur.initialized() && hops < maxChainLength; hops++ {
			entry, next, ok := c.readEntry(cur)
			if ok {
				out = append(out, entry)
			}
			if !ok || !next.initialized() {
				break
			}
			cur = next
		}
	}
	return out
}

func (c *Cache) readEntry(a addr) (Entry, addr, bool) {
	if a.fileType() != typeBlock256 {
		return Entry{}, 0, false
	}
	buf, ok := c.blockData(a, entryStoreSize*a.numBlocks())
	if !ok {
		return Entry{}, 0, false
	}

	next := addr(binary.LittleEndian.Uint32(buf[4:8]))
	rankings := addr(binary.LittleEndian.Uint32(buf[8:12]))
	creation := binary.LittleEndian.Uint64(buf[24:32])
	keyLen := int(int32(binary.LittleEndian.Uint32(buf[32:36])))
	longKey := addr(binary.LittleEndian.Uint32(buf[36:40]))

	if keyLen <= 0 {
		return Entry{}, next, false
	}

	key, ok := c.readKey(buf, keyLen, longKey)
	if !ok {
		return Entry{}, next, false
	}

	entry := Entry{
		Key:          key,
		CreationTime: fromWindowsMicros(creation),
	}
	if rankings.initialized() && rankings.fileType() == typeRankings {
		if node, ok := c.blockData(rankings, rankingsNodeSize); ok {
			entry.LastUsed = fromWindowsMicros(binary.LittleEndian.Uint64(node[0:8]))
		}
	}
	return entry, next, true
}

func (c *Cache) readKey(entryBuf []byte, keyLen int, longKey addr) (string, bool) {
	inlineCap := len(entryBuf) - entryKeyOffset
	if !longKey.initialized() {
		if keyLen > inlineCap {
			return "", false
		}
		return string(entryBuf[entryKeyOffset : entryKeyOffset+keyLen]), true
	}

	// Long keys live in their own block run; external (f_*) keys are not
	// produced for the URL lengths this tool cares about and are skipped.
	if longKey.fileType() == typeExternal {
		return "", false
	}
	buf, ok := c.blockData(longKey, keyLen)
	if !ok {
		return "", false
	}
	return string(buf[:keyLen]), true
}

// blockData resolves a block-run address to its bytes, requiring at least
// want bytes to be present.
func (c *Cache) blockData(a addr, want int) ([]byte, bool) {
	size := a.blockSize()
	if size == 0 {
		return nil, false
	}
	file, ok := c.blocks[a.fileNumber()]
	if !ok {
		return nil, false
	}
	start := blockHeaderSize + a.startBlock()*size
	end := start + size*a.numBlocks()
	if start < blockHeaderSize || end > len(file) || want > end-start {
		return nil, false
	}
	return file[start:end], true
}

func fromWindowsMicros(us uint64) time.Time {
	if us == 0 || us < windowsEpochDeltaMicros {
		return time.Time{}
	}
	unixMicros := us - windowsEpochDeltaMicros
	return time.Unix(int64(unixMicros/1e6), int64(unixMicros%1e6)*1000).UTC()
}
