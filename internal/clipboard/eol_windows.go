package clipboard

const lineEnding = "\r\n"
