// Package bytecode reads and writes the ST bytecode container of
// spec.md §6: a boundary format the core only needs to consume far
// enough to recover resource/task/I-O-map/variable/retain metadata,
// never the POU body encoding itself (spec.md §1 non-goal: "the ST
// bytecode container encoding details (boundary format only)"). POU
// bodies are carried as opaque payloads this package never interprets.
package bytecode

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
)

// Magic is the container's 4-byte identifier.
const Magic = "STBC"

// SupportedMajorVersion is the highest major version this build can
// read; a container with a higher major version is rejected outright
// (spec.md §6 "rejects unsupported major versions").
const SupportedMajorVersion = 1

// SectionID names one section kind. Unrecognized ids are preserved
// opaquely by Decode so a newer container's unknown sections survive a
// read-modify-write round trip.
type SectionID uint16

const (
	SectionStrings SectionID = iota
	SectionTypes
	SectionConstants
	SectionReferences
	SectionPOUIndex
	SectionPOUBodies
	SectionResources
	SectionIOMap
	SectionDebug
	SectionVariables
	SectionRetain
)

// SectionFlag is a per-section flag.
type SectionFlag uint16

// FlagCompressed marks a section's payload as advisory-compressed;
// this package does not itself compress or decompress (spec.md §6
// "Compressed-section flag is advisory").
const FlagCompressed SectionFlag = 1 << 0

// HeaderFlag is a container-wide flag.
type HeaderFlag uint32

// FlagCRC32 marks every section's payload as ending in a trailing
// 4-byte little-endian CRC32 (IEEE) of the preceding bytes, checked on
// decode and appended on encode.
const FlagCRC32 HeaderFlag = 1 << 0

const headerSize = 16 // magic(4) + major(2) + minor(2) + flags(4) + count(2) + reserved(2)
const sectionEntrySize = 12 // id(2) + flags(2) + offset(4) + length(4)

// Container is a decoded bytecode file: header fields plus each
// section's raw payload (CRC-stripped if FlagCRC32 was set), keyed by
// SectionID and also available in on-disk order via Order.
type Container struct {
	MajorVersion uint16
	MinorVersion uint16
	Flags        HeaderFlag

	Order    []SectionID
	Sections map[SectionID][]byte
}

// Section returns id's payload, if present.
func (c *Container) Section(id SectionID) ([]byte, bool) {
	b, ok := c.Sections[id]
	return b, ok
}

// Decode parses a whole container from data.
func Decode(data []byte) (*Container, error) {
	if len(data) < headerSize || string(data[:4]) != Magic {
		return nil, fmt.Errorf("bytecode: missing %q magic", Magic)
	}
	major := binary.LittleEndian.Uint16(data[4:6])
	minor := binary.LittleEndian.Uint16(data[6:8])
	flags := HeaderFlag(binary.LittleEndian.Uint32(data[8:12]))
	count := binary.LittleEndian.Uint16(data[12:14])
	if major > SupportedMajorVersion {
		return nil, fmt.Errorf("bytecode: unsupported major version %d (supports up to %d)", major, SupportedMajorVersion)
	}

	tableEnd := headerSize + int(count)*sectionEntrySize
	if len(data) < tableEnd {
		return nil, fmt.Errorf("bytecode: truncated section table")
	}

	c := &Container{
		MajorVersion: major,
		MinorVersion: minor,
		Flags:        flags,
		Sections:     make(map[SectionID][]byte, count),
	}

	off := headerSize
	for i := 0; i < int(count); i++ {
		id := SectionID(binary.LittleEndian.Uint16(data[off : off+2]))
		soff := binary.LittleEndian.Uint32(data[off+4 : off+8])
		slen := binary.LittleEndian.Uint32(data[off+8 : off+12])
		off += sectionEntrySize

		end := uint64(soff) + uint64(slen)
		if end > uint64(len(data)) {
			return nil, fmt.Errorf("bytecode: section %d out of bounds", id)
		}
		raw := data[soff:end]
		payload, err := stripCRC(id, raw, flags&FlagCRC32 != 0)
		if err != nil {
			return nil, err
		}
		c.Sections[id] = payload
		c.Order = append(c.Order, id)
	}
	return c, nil
}

func stripCRC(id SectionID, raw []byte, checked bool) ([]byte, error) {
	if !checked {
		return raw, nil
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("bytecode: section %d too short for CRC32 trailer", id)
	}
	payload, trailer := raw[:len(raw)-4], raw[len(raw)-4:]
	want := binary.LittleEndian.Uint32(trailer)
	got := crc32.ChecksumIEEE(payload)
	if got != want {
		return nil, fmt.Errorf("bytecode: section %d CRC32 mismatch (want %08x, got %08x)", id, want, got)
	}
	return payload, nil
}

// Encoder builds a container section by section, preserving insertion
// order, for `stplc build` to emit.
type Encoder struct {
	major, minor uint16
	crc          bool
	sections     []encSection
}

type encSection struct {
	id      SectionID
	flags   SectionFlag
	payload []byte
}

// NewEncoder starts a container at the given version. When crc is
// true, every section's payload gets a trailing CRC32 and FlagCRC32 is
// set in the header.
func NewEncoder(major, minor uint16, crc bool) *Encoder {
	return &Encoder{major: major, minor: minor, crc: crc}
}

// AddSection appends id's payload in encode order.
func (e *Encoder) AddSection(id SectionID, payload []byte, compressed bool) {
	var flags SectionFlag
	if compressed {
		flags |= FlagCompressed
	}
	e.sections = append(e.sections, encSection{id: id, flags: flags, payload: payload})
}

// Encode renders the full container.
func (e *Encoder) Encode() []byte {
	var headerFlags HeaderFlag
	if e.crc {
		headerFlags |= FlagCRC32
	}

	tableEnd := headerSize + len(e.sections)*sectionEntrySize
	offset := tableEnd
	type placed struct {
		encSection
		offset int
		length int
	}
	var placedSections []placed
	var body bytes.Buffer
	for _, s := range e.sections {
		payload := s.payload
		if e.crc {
			sum := crc32.ChecksumIEEE(payload)
			trailer := make([]byte, 4)
			binary.LittleEndian.PutUint32(trailer, sum)
			payload = append(append([]byte{}, payload...), trailer...)
		}
		placedSections = append(placedSections, placed{encSection: s, offset: offset, length: len(payload)})
		body.Write(payload)
		offset += len(payload)
	}

	out := make([]byte, 0, tableEnd+body.Len())
	header := make([]byte, headerSize)
	copy(header[:4], Magic)
	binary.LittleEndian.PutUint16(header[4:6], e.major)
	binary.LittleEndian.PutUint16(header[6:8], e.minor)
	binary.LittleEndian.PutUint32(header[8:12], uint32(headerFlags))
	binary.LittleEndian.PutUint16(header[12:14], uint16(len(e.sections)))
	out = append(out, header...)

	for _, p := range placedSections {
		entry := make([]byte, sectionEntrySize)
		binary.LittleEndian.PutUint16(entry[0:2], uint16(p.id))
		binary.LittleEndian.PutUint16(entry[2:4], uint16(p.flags))
		binary.LittleEndian.PutUint32(entry[4:8], uint32(p.offset))
		binary.LittleEndian.PutUint32(entry[8:12], uint32(p.length))
		out = append(out, entry...)
	}
	out = append(out, body.Bytes()...)
	return out
}

// StringTable encodes/decodes the string-table section: a u32 count
// followed by length-prefixed UTF-8 entries (spec.md §6 "String
// entries are UTF-8 with explicit length").
type StringTable []string

// EncodeStringTable renders t as the string-table section payload.
func EncodeStringTable(t StringTable) []byte {
	var buf bytes.Buffer
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(t)))
	buf.Write(countBuf[:])
	for _, s := range t {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
		buf.Write(lenBuf[:])
		buf.WriteString(s)
	}
	return buf.Bytes()
}

// DecodeStringTable parses a string-table section payload.
func DecodeStringTable(data []byte) (StringTable, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("bytecode: truncated string table")
	}
	count := binary.LittleEndian.Uint32(data[:4])
	data = data[4:]
	out := make(StringTable, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(data) < 4 {
			return nil, fmt.Errorf("bytecode: truncated string table entry %d", i)
		}
		n := binary.LittleEndian.Uint32(data[:4])
		data = data[4:]
		if uint64(len(data)) < uint64(n) {
			return nil, fmt.Errorf("bytecode: truncated string table entry %d body", i)
		}
		out = append(out, string(data[:n]))
		data = data[n:]
	}
	return out, nil
}

// TaskMeta mirrors one scheduler.Task's configuration, the part that
// must survive a compile -> load round trip (spec.md §4.11).
type TaskMeta struct {
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
	DeclOrder int    `json:"declOrder"`
	Single    string `json:"single,omitempty"` // direct address, e.g. "%IX0.0"
	IntervalMS int64  `json:"intervalMs,omitempty"`
}

// ResourceMeta describes one resource's configuration: its tasks, its
// process-image sizing, and the watchdog/safe-state policy (spec.md
// §4.11, §5, SPEC_FULL.md §6 "Watchdog safe-state outputs").
type ResourceMeta struct {
	Name          string            `json:"name"`
	InputBytes    int               `json:"inputBytes"`
	OutputBytes   int               `json:"outputBytes"`
	MarkerBytes   int               `json:"markerBytes"`
	Tasks         []TaskMeta        `json:"tasks"`
	Background    []string          `json:"background,omitempty"` // POU names run every cycle outside any task
	CycleBudgetMS int64             `json:"cycleBudgetMs,omitempty"`
	SafeState     map[string]string `json:"safeState,omitempty"` // address -> "TRUE"/"FALSE", applied on watchdog trip
}

// EncodeResources renders the resources section as JSON: the outer
// container framing is the part spec.md §6 specifies precisely, and
// the inner metadata records are free-form ("boundary format only"),
// so JSON keeps them self-describing and forward-compatible instead of
// hand-rolling a second binary schema spec.md never mandates.
func EncodeResources(resources []ResourceMeta) ([]byte, error) {
	return json.Marshal(resources)
}

// DecodeResources parses the resources section payload.
func DecodeResources(data []byte) ([]ResourceMeta, error) {
	var out []ResourceMeta
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("bytecode: decode resources section: %w", err)
	}
	return out, nil
}

// IOMapEntry binds a direct address to the symbol name it backs, for
// cross-referencing a loaded container's I/O map against the HMI
// schema and the control protocol.
type IOMapEntry struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

// EncodeIOMap renders the I/O-map section.
func EncodeIOMap(entries []IOMapEntry) ([]byte, error) {
	return json.Marshal(entries)
}

// DecodeIOMap parses the I/O-map section payload.
func DecodeIOMap(data []byte) ([]IOMapEntry, error) {
	var out []IOMapEntry
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("bytecode: decode I/O map section: %w", err)
	}
	return out, nil
}

// VariableMeta is one entry of the optional variable-metadata section:
// enough for a debugger or HMI to resolve a qualified name back to its
// declared type and qualifier without re-parsing source.
type VariableMeta struct {
	QualifiedName string `json:"qualifiedName"`
	TypeName      string `json:"typeName"`
	Qualifier     string `json:"qualifier"`
	Retain        bool   `json:"retain"`
}

// EncodeVariables renders the optional variable-metadata section.
func EncodeVariables(vars []VariableMeta) ([]byte, error) {
	return json.Marshal(vars)
}

// DecodeVariables parses the variable-metadata section payload.
func DecodeVariables(data []byte) ([]VariableMeta, error) {
	var out []VariableMeta
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("bytecode: decode variables section: %w", err)
	}
	return out, nil
}

// RetainInit is the optional retain-init section: a cold-start seed
// value per retain-store key, used the first time a resource runs
// before any checkpoint exists to warm-start from (spec.md §4.10).
type RetainInit map[string]string

// EncodeRetainInit renders the retain-init section.
func EncodeRetainInit(init RetainInit) ([]byte, error) {
	return json.Marshal(init)
}

// DecodeRetainInit parses the retain-init section payload.
func DecodeRetainInit(data []byte) (RetainInit, error) {
	out := make(RetainInit)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("bytecode: decode retain-init section: %w", err)
	}
	return out, nil
}
