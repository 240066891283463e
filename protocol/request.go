package protocol

// PutRequest asks the server to store data under name.
func PutRequest(name string, data []byte) Payload {
	if data == nil {
		data = []byte{}
	}

	return New(CommandPut, StatusRequest, WithFilename(name), WithFileData(data))
}

// GetRequest asks the server for the file stored under name.
func GetRequest(name string) Payload {
	return New(CommandGet, StatusRequest, WithFilename(name))
}

// ListRequest asks the server for the names of all stored files.
func ListRequest() Payload {
	return New(CommandList, StatusRequest)
}
