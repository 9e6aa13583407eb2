// Package manifest builds the list of files vendored from the Orthanc
// repository.
//
// A [Manifest] is rebuilt from [Sources] on every run and holds no state.
// Framework files keep their basename and land in the directory named by
// their entry; SDK headers land under [SDKDir]:
//
//	OrthancFramework/Resources/CMake/DownloadOrthancFramework.cmake -> CMake/DownloadOrthancFramework.cmake
//	Plugins/Include/orthanc/OrthancCPlugin.h                         -> ../Orthanc/Sdk-1.3.1/orthanc/OrthancCPlugin.h
package manifest
