// Package track loads track files and turns them into the geometry the race
// core queries for collisions and zones.
//
// A track is a character grid (see the Char* constants) plus optional polygon
// zones. Build converts every tile into a polygon, groups them by zone kind
// and indexes each group with an R-tree, so Overlaps and ResolveCollision only
// test the few shapes near the vehicle.
//
// Walls collide by their bounding boxes. Tile walls are exact; a polygon wall
// blocks its whole envelope.
package track
