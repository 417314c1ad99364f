// Package osmio reads and writes entity streams as JSON Lines.
//
// Each line holds one entity:
//
//	{"type":"node","id":1,"tags":[["highway","ford"],["name","X"]]}
//
// Tags are an ordered array of [key, value] pairs. Entities are grouped by
// type (nodes, then ways, then relations) and ordered by id within a group;
// the reader enforces this so the output keeps the container ordering.
package osmio
