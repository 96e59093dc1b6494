/*
Package vision implements the detection pipeline.

A single Process call runs four stages over one image:

	load + letterbox ──► object detection ──► QR decode ──► assembly
	     (preprocess)        (detect)            (qr)       (coords)

Detections route by class name into a general-object sink and a QR
sink. QR crops are cut from the original image with a small margin and
fed to the decode ladder; a direct pass over the full image backs up
degraded crops. All boxes in the final payload are expressed in
original-image coordinates.

Only image-load and model failures abort a run. Undecodable symbols
are reported with sentinel content, never as pipeline errors.
*/
package vision
