// Package mediamux downloads the best audio and video pairing of a media URL
// as one file.
//
// Features:
//   - Format classification into audio, video and pre-merged streams
//   - Pairing of split streams by codec and container compatibility
//   - Ranking by bitrate, size budget, codec priority and language
//   - Chunked HTTP range fetches or yt-dlp streams merged by ffmpeg over pipes
//   - Optional JavaScript candidate filter, thumbnails and playlists
package mediamux
