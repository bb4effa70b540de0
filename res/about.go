package res

// AboutContent contains the Markdown content for the About dialog.
const AboutContent = `Internet radio for the Primal Radio network.

**Stations:**
- Primal Radio and Primal Radio 2 audio streams
- Primal TV live channel

**Features:**
- Live now-playing info with show and host from the weekly schedule
- Automatic reconnect when a stream drops
- Winamp, VLC and iTunes playlist links
`
