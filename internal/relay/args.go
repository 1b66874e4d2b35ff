package relay

// ffmpegArgs builds the transcoder invocation: read the chunk playlist with
// the auth token attached, copy the audio codec and emit ADTS frames on
// stdout with buffering suppressed.
func ffmpegArgs(playlistURL, authToken string) []string {
	args := []string{
		"-loglevel", "warning",
		"-nostdin",
		"-fflags", "+nobuffer+flush_packets",
		"-flags", "low_delay",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "2",
	}
	if authToken != "" {
		args = append(args, "-headers", "X-Radiko-AuthToken: "+authToken+"\r\n")
	}
	args = append(args,
		"-i", playlistURL,
		"-c:a", "copy",
		"-f", "adts",
		"pipe:1",
	)
	return args
}
