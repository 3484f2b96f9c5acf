// Package template caches decoded reference images ("templates") used as
// visual anchors.
//
// A Store is built once at startup with Load and then shared by every
// worker. Keys are the file path relative to the template directory, with
// forward slashes and without extension: data/images/social/copy.png is
// "social/copy". Entries are write-once; inserting an existing key keeps
// the first image.
//
// Images are stored as 8-bit grayscale, the form the matcher consumes.
// PNG, JPEG, BMP and WebP files are recognised.
package template
