// Package web serves the server-rendered task pages: listing and search,
// create, details, edit and delete. It shares the task service and the
// error-to-status table with the JSON API.
package web
