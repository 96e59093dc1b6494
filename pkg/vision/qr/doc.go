/*
Package qr decodes QR symbols from detection crops.

A crop first goes through the raw grayscale decoder; if that fails, a
ladder of progressively heavier reconstructions runs in order
(adaptive threshold, denoise, sharpen, upscale, blur plus inversion,
rotations), returning on the first rung that decodes. Exhausting the
ladder is not an error; the caller records a sentinel instead.

DecodeDirect offers the parallel fallback pass over the full image for
symbols readable in context but degraded in isolation.
*/
package qr
