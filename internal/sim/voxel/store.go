// Package voxel is an in-memory, chunked block store for one dimension.
package voxel

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/sim/catalogs"
)

const chunkSize = 16

// Dimension identifies a world within the server, e.g. minecraft:overworld.
type Dimension struct {
	Namespace string
	Path      string
}

func (d Dimension) Identifier() string { return d.Namespace + ":" + d.Path }

type ChunkKey struct {
	CX int
	CZ int
}

type Chunk struct {
	CX, CZ int
	Blocks []uint16 // len = 16*16*height, index x + z*16 + (y-minY)*256

	dirty bool
	hash  [32]byte
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// Config describes the vertical extent and flat terrain of a store.
type Config struct {
	MinY     int
	Height   int
	SurfaceY int // top solid layer; bedrock at MinY, dirt just below the surface
}

type Store struct {
	Dim    Dimension
	Cfg    Config
	Chunks map[ChunkKey]*Chunk

	blocks *catalogs.BlockCatalog

	air, bedrock, stone, dirt, grass uint16
}

func New(dim Dimension, blocks *catalogs.BlockCatalog, cfg Config) (*Store, error) {
	if blocks == nil {
		return nil, fmt.Errorf("voxel: nil block catalog")
	}
	if cfg.Height <= 0 {
		return nil, fmt.Errorf("voxel: height must be positive")
	}
	s := &Store{
		Dim:    dim,
		Cfg:    cfg,
		Chunks: map[ChunkKey]*Chunk{},
		blocks: blocks,
	}
	for _, b := range []struct {
		id  string
		dst *uint16
	}{
		{"AIR", &s.air},
		{"BEDROCK", &s.bedrock},
		{"STONE", &s.stone},
		{"DIRT", &s.dirt},
		{"GRASS", &s.grass},
	} {
		v, ok := blocks.Index[b.id]
		if !ok {
			return nil, fmt.Errorf("voxel: block catalog missing %s", b.id)
		}
		*b.dst = v
	}
	return s, nil
}

func (s *Store) Dimension() Dimension { return s.Dim }

func (s *Store) InBounds(pos cube.Pos) bool {
	return pos.Y() >= s.Cfg.MinY && pos.Y() < s.Cfg.MinY+s.Cfg.Height
}

func (s *Store) Block(pos cube.Pos) uint16 {
	if !s.InBounds(pos) {
		return s.air
	}
	ch := s.GetOrGenChunk(floorDiv(pos.X(), chunkSize), floorDiv(pos.Z(), chunkSize))
	return ch.Blocks[s.index(pos)]
}

func (s *Store) SetBlockID(pos cube.Pos, b uint16) error {
	if !s.InBounds(pos) {
		return fmt.Errorf("voxel: %v out of bounds", pos)
	}
	if int(b) >= len(s.blocks.Palette) {
		return fmt.Errorf("voxel: unknown block id %d", b)
	}
	ch := s.GetOrGenChunk(floorDiv(pos.X(), chunkSize), floorDiv(pos.Z(), chunkSize))
	i := s.index(pos)
	if ch.Blocks[i] == b {
		return nil
	}
	ch.Blocks[i] = b
	ch.dirty = true
	return nil
}

// BlockAt returns the catalog id of the block at pos.
func (s *Store) BlockAt(pos cube.Pos) string {
	return s.blocks.Palette[s.Block(pos)]
}

func (s *Store) SetBlock(pos cube.Pos, id string) error {
	b, ok := s.blocks.Index[id]
	if !ok {
		return fmt.Errorf("voxel: unknown block %q", id)
	}
	return s.SetBlockID(pos, b)
}

func (s *Store) Solid(pos cube.Pos) bool {
	return s.blocks.Solid(s.Block(pos))
}

func (s *Store) index(pos cube.Pos) int {
	lx := mod(pos.X(), chunkSize)
	lz := mod(pos.Z(), chunkSize)
	return lx + lz*chunkSize + (pos.Y()-s.Cfg.MinY)*chunkSize*chunkSize
}

func (s *Store) GetOrGenChunk(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := s.Chunks[k]; ok {
		return ch
	}
	ch := &Chunk{
		CX:     cx,
		CZ:     cz,
		Blocks: make([]uint16, chunkSize*chunkSize*s.Cfg.Height),
	}
	s.generate(ch)
	ch.dirty = true
	s.Chunks[k] = ch
	return ch
}

// generate fills a chunk with flat terrain.
func (s *Store) generate(ch *Chunk) {
	for dy := 0; dy < s.Cfg.Height; dy++ {
		y := s.Cfg.MinY + dy
		b := s.air
		switch {
		case y == s.Cfg.MinY:
			b = s.bedrock
		case y == s.Cfg.SurfaceY:
			b = s.grass
		case y < s.Cfg.SurfaceY && y >= s.Cfg.SurfaceY-3:
			b = s.dirt
		case y < s.Cfg.SurfaceY:
			b = s.stone
		}
		if b == s.air {
			continue
		}
		base := dy * chunkSize * chunkSize
		for i := 0; i < chunkSize*chunkSize; i++ {
			ch.Blocks[base+i] = b
		}
	}
}

func (s *Store) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.Chunks))
	for k := range s.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

// Digest hashes all loaded chunks in key order.
func (s *Store) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	for _, k := range s.LoadedChunkKeys() {
		binary.LittleEndian.PutUint32(tmp[:4], uint32(int32(k.CX)))
		binary.LittleEndian.PutUint32(tmp[4:], uint32(int32(k.CZ)))
		h.Write(tmp[:])
		d := s.Chunks[k].Digest()
		h.Write(d[:])
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ImportChunk replaces a chunk with stored block data.
func (s *Store) ImportChunk(cx, cz int, blocks []uint16) error {
	if len(blocks) != chunkSize*chunkSize*s.Cfg.Height {
		return fmt.Errorf("voxel: chunk %d,%d has %d blocks, want %d", cx, cz, len(blocks), chunkSize*chunkSize*s.Cfg.Height)
	}
	for i, b := range blocks {
		if int(b) >= len(s.blocks.Palette) {
			return fmt.Errorf("voxel: chunk %d,%d block %d: unknown id %d", cx, cz, i, b)
		}
	}
	ch := &Chunk{CX: cx, CZ: cz, Blocks: append([]uint16(nil), blocks...), dirty: true}
	s.Chunks[ChunkKey{CX: cx, CZ: cz}] = ch
	return nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
