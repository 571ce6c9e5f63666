package geometry

import (
	"fmt"
	"math"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/models"

	"seehuhn.de/go/geom/vec"
)

// ============================================================
// Wall Segment Merger
// ============================================================

const (
	NoiseFloor     = 0.05         // отрезки короче считаются шумом рисования
	EndpointMatch  = 0.1          // допуск совпадения концов при поиске дублей
	ChainGap       = 0.15         // допуск стыка хвоста цепочки и следующего отрезка
	CollinearAngle = math.Pi / 12 // 15°, допуск коллинеарности соседних отрезков
)

// WallTolerances собирает допуски слияния стен.
type WallTolerances struct {
	NoiseFloor     float64 `yaml:"noise_floor"`
	EndpointMatch  float64 `yaml:"endpoint_match"`
	ChainGap       float64 `yaml:"chain_gap"`
	CollinearAngle float64 `yaml:"collinear_angle"`
}

func DefaultWallTolerances() WallTolerances {
	return WallTolerances{
		NoiseFloor:     NoiseFloor,
		EndpointMatch:  EndpointMatch,
		ChainGap:       ChainGap,
		CollinearAngle: CollinearAngle,
	}
}

// Segment: временная пара точек, живет только внутри слияния.
type Segment struct {
	Start     vec.Vec2
	End       vec.Vec2
	Thickness float64
	Name      string
}

func (s Segment) Length() float64 {
	return s.End.Sub(s.Start).Length()
}

func (s Segment) direction() vec.Vec2 {
	return s.End.Sub(s.Start)
}

// SegmentFromElement достает отрезок из стены.
func SegmentFromElement(e models.StructuralElement) (Segment, bool) {
	line, ok := e.Line()
	if !ok {
		return Segment{}, false
	}
	return Segment{
		Start:     vec.Vec2{X: line.Start.X, Y: line.Start.Y},
		End:       vec.Vec2{X: line.End.X, Y: line.End.Y},
		Thickness: line.Thickness,
		Name:      e.Name,
	}, true
}

type WallMerger struct {
	tol WallTolerances
}

func NewWallMerger(tol WallTolerances) *WallMerger {
	return &WallMerger{tol: tol}
}

// CleanWallSegments: очистка и дедупликация с допусками по умолчанию.
func CleanWallSegments(segments []Segment) []Segment {
	return NewWallMerger(DefaultWallTolerances()).Clean(segments)
}

// BuildContinuousWalls: полный цикл слияния с допусками по умолчанию.
func BuildContinuousWalls(segments []Segment) []models.StructuralElement {
	return NewWallMerger(DefaultWallTolerances()).BuildContinuousWalls(segments)
}

// Clean убирает шум и дубли (в любом направлении), оставляя первое вхождение.
func (m *WallMerger) Clean(segments []Segment) []Segment {
	var kept []Segment
	for _, seg := range segments {
		if seg.Length() < m.tol.NoiseFloor {
			continue
		}

		duplicate := false
		for _, k := range kept {
			if m.isDuplicate(k, seg) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, seg)
		}
	}
	return kept
}

func (m *WallMerger) isDuplicate(a, b Segment) bool {
	near := func(p, q vec.Vec2) bool {
		return p.Sub(q).Length() < m.tol.EndpointMatch
	}
	forward := near(a.Start, b.Start) && near(a.End, b.End)
	reversed := near(a.Start, b.End) && near(a.End, b.Start)
	return forward || reversed
}

// Chain жадно собирает цепочки. Продолжением берется первый по порядку входа
// неиспользованный отрезок, а не лучший; от этого порядка зависит
// результат, и он должен сохраняться для совместимости экспорта.
func (m *WallMerger) Chain(segments []Segment) [][]Segment {
	consumed := make([]bool, len(segments))
	var chains [][]Segment

	for i := range segments {
		if consumed[i] {
			continue
		}
		consumed[i] = true
		chain := []Segment{segments[i]}

		for {
			tail := chain[len(chain)-1]
			next := -1
			for j := range segments {
				if consumed[j] {
					continue
				}
				if m.continues(tail, segments[j]) {
					next = j
					break
				}
			}
			if next < 0 {
				break
			}
			consumed[next] = true
			chain = append(chain, segments[next])
		}

		chains = append(chains, chain)
	}

	return chains
}

func (m *WallMerger) continues(tail, candidate Segment) bool {
	if candidate.Start.Sub(tail.End).Length() >= m.tol.ChainGap {
		return false
	}
	return m.collinear(tail.direction(), candidate.direction())
}

func (m *WallMerger) collinear(d1, d2 vec.Vec2) bool {
	diff := math.Abs(math.Atan2(d1.Y, d1.X) - math.Atan2(d2.Y, d2.X))
	if diff > math.Pi {
		diff = 2*math.Pi - diff
	}
	return diff < m.tol.CollinearAngle || math.Abs(diff-math.Pi) < m.tol.CollinearAngle
}

// BuildContinuousWalls: clean -> dedup -> chain -> одна стена на цепочку.
func (m *WallMerger) BuildContinuousWalls(segments []Segment) []models.StructuralElement {
	chains := m.Chain(m.Clean(segments))

	walls := make([]models.StructuralElement, 0, len(chains))
	for i, chain := range chains {
		first, last := chain[0], chain[len(chain)-1]

		name := first.Name
		if name == "" {
			name = fmt.Sprintf("wall_%d", i+1)
		}

		walls = append(walls, models.StructuralElement{
			Type: models.ElementWall,
			Name: name,
			Geometry: models.NewLineSegment(
				models.GridPoint{X: first.Start.X, Y: first.Start.Y},
				models.GridPoint{X: last.End.X, Y: last.End.Y},
				first.Thickness,
			),
		})
	}
	return walls
}

// MergeWalls возвращает новый список: прямоугольные элементы в исходном
// порядке, затем слитые стены.
func (m *WallMerger) MergeWalls(elements []models.StructuralElement) []models.StructuralElement {
	var rest []models.StructuralElement
	var segments []Segment
	for _, e := range elements {
		if seg, ok := SegmentFromElement(e); ok {
			segments = append(segments, seg)
			continue
		}
		rest = append(rest, e)
	}

	out := make([]models.StructuralElement, 0, len(rest)+len(segments))
	out = append(out, rest...)
	return append(out, m.BuildContinuousWalls(segments)...)
}
