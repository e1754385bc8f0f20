// Package binarize wraps the external vein binarization transform, which turns
// an augmented vein image into its binary form. The transform is a black box
// invoked as `<python> <script> -i IN -o OUT`.
package binarize
