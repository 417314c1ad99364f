// Package source reads the external label table and validates the
// reference ids it is keyed by.
//
// Label tables are delimited files with a header row naming at least the
// id, lang and label columns:
//
//	id,lang,label,key
//	Q64,de,Berlin,name:de
//	Q64,ru,Берлин,
//
// A missing or empty key column is synthesized as <prefix><lang>, so the
// rows above produce name:de and name:ru with the default "name:" prefix.
package source
