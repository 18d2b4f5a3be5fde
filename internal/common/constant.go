package common

// APIKeyHeaderName is the HTTP header carrying the key for key-value bucket
// services that require one.
const APIKeyHeaderName = "X-Api-Key"

// DocumentContentType is sent with every snapshot upload.
const DocumentContentType = "application/json"
