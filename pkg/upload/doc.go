// Package upload receives the files sent by dragondrop widgets.
//
// Two handlers cover the widget's two paths:
//
//   - DataURLHandler takes the widget's JSON upload, a body whose "file"
//     field is a base64 data URL merged with caller-supplied fields.
//   - FormHandler takes the manual fallback form, a multipart POST with a
//     "file" part.
//
// Both write the file to a Store and answer with a Result:
//
//	{"temp_id": "…", "content_type": "image/png", "size": 1234, "fields": {"note": "x"}}
//
// The temp file lives until it is claimed or until Cleanup removes it:
//
//	file, err := upload.Claim(ctx, store, tempID)
//	if err != nil {
//	    return err
//	}
//	defer file.Close()
//
// # Usage
//
//	store, err := upload.NewDiskStore(".dragondrop/uploads", 10<<20)
//	r.Post("/upload", upload.DataURLHandler(store, nil).ServeHTTP)
//	r.Post("/upload/manual", upload.FormHandler(store, nil).ServeHTTP)
//	go upload.RunCleanup(ctx, store, 5*time.Minute, time.Hour, nil)
//
// # Security
//
// Config.AllowedTypes is enforced against the type detected from the bytes
// (http.DetectContentType). The data URL media type and the multipart
// Content-Type header are not trusted.
//
// For defense-in-depth, also consider:
//   - Restricting filename extensions via Config.AllowedExtensions
//   - Enforcing extension-to-type match via Config.RequireExtensionMatch
//   - Virus/malware scanning before making uploads available to end users
package upload
