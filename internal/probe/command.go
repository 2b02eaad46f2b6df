package probe

// buildArgs constructs the ffmpeg argument list for a measurement probe.
// The input side always runs unbuffered and discards corrupt packets so
// stalls surface in the reported speed immediately. When error detection
// is enabled the stream is decoded so decode errors appear on stderr;
// otherwise it is copied, which is much cheaper.
func buildArgs(userAgent, streamURL string, decodeForErrors bool) []string {
	args := []string{
		"-hide_banner",
		"-user_agent", userAgent,
		"-fflags", "+nobuffer+discardcorrupt",
		"-flags", "low_delay",
		"-rtbufsize", "10M",
		"-i", streamURL,
	}

	if decodeForErrors {
		args = append(args,
			"-fflags", "nobuffer",
			"-flags", "low_delay",
			"-max_muxing_queue_size", "512",
		)
	} else {
		args = append(args, "-c", "copy")
	}

	return append(args, "-f", "null", "null")
}
