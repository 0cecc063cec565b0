package webchat

import _ "embed"

//go:embed assets/widget.js
var widgetJS []byte

//go:embed assets/index.html
var indexHTML []byte
