// Package sqlite persists exported tracking graphs.
//
// A run is one finalized Mesh together with the label and resolved
// configuration it was produced with. Node and edge rows keep their
// export ordinals so a loaded Mesh is identical to the saved one.
package sqlite
