// Package config defines configuration structures for the orthanc-sync CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (ORTHANC_SYNC_ prefix)
//   - YAML configuration file
//
// With no configuration at all, [Default] reproduces the upstream file set:
// four CMake helper scripts from the framework's default branch and the
// plugin SDK header from the Orthanc-1.3.1 release.
//
// # File format
//
//	repository: https://orthanc.uclouvain.be/hg/orthanc/raw-file
//	target: Resources
//	workers: 10
//	framework:
//	  branch: default
//	sdk:
//	  version: 1.3.1
//	  files:
//	    - orthanc/OrthancCPlugin.h
//	files:
//	  - source: OrthancFramework/Resources/CMake/DownloadOrthancFramework.cmake
//	    dir: CMake
//	retry:
//	  attempts: 0
//	logging:
//	  level: info
//	  format: console
package config
