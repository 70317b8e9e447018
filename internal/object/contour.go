// Package object turns binary masks into contour sets and composes them into
// a single plant object.
package object

import (
	"image"
	"sort"

	"phenotrace/pkg/geometry"
)

// None marks an absent hierarchy link.
const None = -1

// Relation links a contour to its neighbours in the same set, using the
// OpenCV hierarchy layout (next, previous, first child, parent).
type Relation struct {
	Next       int
	Prev       int
	FirstChild int
	Parent     int
}

// Contour is the traced boundary of one connected region.
type Contour struct {
	Points   []image.Point
	Relation Relation
}

// IsHole reports whether the contour bounds a hole inside a parent region.
func (c Contour) IsHole() bool {
	return c.Relation.Parent != None
}

// Area returns the polygon area enclosed by the contour.
func (c Contour) Area() float64 {
	return geometry.PolygonArea(c.Points)
}

// Bounds returns the inclusive bounding box of the contour points.
func (c Contour) Bounds() geometry.RectInt {
	return geometry.BoundingBox(c.Points)
}

// Set is an ordered contour list with its hierarchy.
type Set struct {
	Contours []Contour
}

// NewSet builds a set from point lists and parent indices (None for
// top-level), deriving the sibling and child links.
func NewSet(points [][]image.Point, parents []int) Set {
	contours := make([]Contour, len(points))
	for i, pts := range points {
		parent := None
		if i < len(parents) {
			parent = parents[i]
		}
		contours[i] = Contour{Points: pts, Relation: Relation{Parent: parent}}
	}
	relink(contours)
	return Set{Contours: contours}
}

// Len returns the number of contours, holes included.
func (s Set) Len() int {
	return len(s.Contours)
}

// TopLevel returns the indices of contours without a parent, in index order.
func (s Set) TopLevel() []int {
	var ids []int
	for i, c := range s.Contours {
		if c.Relation.Parent == None {
			ids = append(ids, i)
		}
	}
	return ids
}

// Holes returns the indices of contours with a parent, in index order.
func (s Set) Holes() []int {
	var ids []int
	for i, c := range s.Contours {
		if c.Relation.Parent != None {
			ids = append(ids, i)
		}
	}
	return ids
}

// Children returns the direct children of contour i.
func (s Set) Children(i int) []int {
	var ids []int
	for c := s.Contours[i].Relation.FirstChild; c != None; c = s.Contours[c].Relation.Next {
		ids = append(ids, c)
	}
	return ids
}

// Subset returns a new set holding the given top-level contours and all of
// their descendants, reindexed in original order.
func (s Set) Subset(topLevel []int) Set {
	include := make(map[int]bool)
	var walk func(i int)
	walk = func(i int) {
		if include[i] {
			return
		}
		include[i] = true
		for _, c := range s.Children(i) {
			walk(c)
		}
	}
	for _, i := range topLevel {
		if i >= 0 && i < len(s.Contours) && s.Contours[i].Relation.Parent == None {
			walk(i)
		}
	}

	order := make([]int, 0, len(include))
	for i := range include {
		order = append(order, i)
	}
	sort.Ints(order)

	remap := make(map[int]int, len(order))
	for newIdx, oldIdx := range order {
		remap[oldIdx] = newIdx
	}

	contours := make([]Contour, len(order))
	for newIdx, oldIdx := range order {
		parent := None
		if p := s.Contours[oldIdx].Relation.Parent; p != None {
			parent = remap[p]
		}
		contours[newIdx] = Contour{
			Points:   s.Contours[oldIdx].Points,
			Relation: Relation{Parent: parent},
		}
	}
	relink(contours)
	return Set{Contours: contours}
}

// relink recomputes next/prev/first-child links from the parent indices.
// Siblings are chained in index order.
func relink(contours []Contour) {
	last := make(map[int]int)
	for i := range contours {
		contours[i].Relation.Next = None
		contours[i].Relation.Prev = None
		contours[i].Relation.FirstChild = None
	}
	for i := range contours {
		parent := contours[i].Relation.Parent
		if prev, ok := last[parent]; ok {
			contours[prev].Relation.Next = i
			contours[i].Relation.Prev = prev
		} else if parent != None {
			contours[parent].Relation.FirstChild = i
		}
		last[parent] = i
	}
}
